package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and build details",
		RunE:  versionCommand,
		Args:  cobra.NoArgs,
	}
}

func versionCommand(cmd *cobra.Command, args []string) error {
	console.Output(fmt.Sprintf("slipway %s", global.Version))
	if global.Commit != "" {
		console.Output(fmt.Sprintf("commit: %s", global.Commit))
	}
	console.Output(fmt.Sprintf("built: %s", global.BuildTime))
	return nil
}
