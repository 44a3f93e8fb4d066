package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/store"
	"github.com/slipway-ci/slipway/pkg/update"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

var projectDirFlag string

func NewRootCommand() (*cobra.Command, error) {
	rootCmd := cobra.Command{
		Use:   "slipway",
		Short: "Turn published releases into published packages",
		Long: `Slipway runs a release-triggered pipeline: check out the released tag,
provision the runtime the project metadata declares, install the build
tool, build distributable artifacts, and publish them to the package
index with trusted publishing.`,
		Version: fmt.Sprintf("%s (built %s)", global.Version, global.BuildTime),
		// Errors print once, in cmd/slipway/main.go.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if global.Verbose {
				console.SetLevel(console.DebugLevel)
			}
			cmd.SilenceUsage = true
			if err := update.DisplayAndCheckForRelease(); err != nil {
				console.Debugf("%s", err)
			}
		},
		SilenceErrors: true,
	}
	setPersistentFlags(&rootCmd)

	// Accept the snake_case spellings the config file uses, so
	// --project_dir works wherever --project-dir does.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.AddCommand(
		newRunCommand(),
		newListenCommand(),
		newBuildCommand(),
		newPublishCommand(),
		newLintCommand(),
		newInitCommand(),
		newLoginCommand(),
		newRunsCommand(),
		newDoctorCommand(),
		newVersionCommand(),
	)

	return &rootCmd, nil
}

func setPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "Verbose output")
}

func addProjectDirFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&projectDirFlag, "project-dir", "D", "", "Project directory, defaults to searching upward from the working directory")
}

// openStore opens the run history database at its default location.
func openStore() (*store.Store, error) {
	path, err := store.DefaultPath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}
