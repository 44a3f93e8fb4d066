package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/doctor"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

func newDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can run the pipeline",
		Long: `Examine the project and the machine it runs on: configuration,
required executables, disk space, package index reachability and
trusted publishing credentials.`,
		RunE: doctorCommand,
		Args: cobra.NoArgs,
	}
	addProjectDirFlag(cmd)
	return cmd
}

func doctorCommand(cmd *cobra.Command, args []string) error {
	console.Info("Examining the project and this machine...\n")
	failed := doctor.RunAll(cmd.Context(), doctor.Checks(projectDirFlag))
	if failed > 0 {
		return fmt.Errorf("%d of the checks failed", failed)
	}
	console.Info("\nAll checks passed")
	return nil
}
