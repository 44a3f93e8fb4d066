package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/lint"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

func newLintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check slipway.yaml for pipeline wiring mistakes",
		Long: `Check the project's slipway.yaml for mistakes parsing alone cannot
catch: triggers that fire on the wrong deliveries, pinned runtime
versions, publish sources outside the build output, and static
credentials. Errors exit 1; warnings do not.`,
		Args: cobra.NoArgs,
		RunE: lintCommand,
	}
	addProjectDirFlag(cmd)
	return cmd
}

func lintCommand(cmd *cobra.Command, args []string) error {
	report, rootDir, err := lint.CheckProject(projectDirFlag)
	if err != nil {
		return err
	}

	if len(report.Problems) == 0 {
		console.Infof("%s in %s looks good", global.ConfigFilename, rootDir)
		return nil
	}
	for _, problem := range report.Problems {
		if problem.Severity == lint.SeverityError {
			console.Error(problem.String())
		} else {
			console.Warn(problem.String())
		}
	}
	if report.HasErrors() {
		return fmt.Errorf("%s has problems", global.ConfigFilename)
	}
	return nil
}
