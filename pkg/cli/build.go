package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/event"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/pipeline"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

var buildRelease string

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the project in place, without publishing",
		Long: `Rehearse a run against the working tree: provision the runtime the
project metadata declares, install the build tool, and build artifacts.
Nothing is uploaded.`,
		Args: cobra.NoArgs,
		RunE: buildCommand,
	}
	addProjectDirFlag(cmd)
	cmd.Flags().StringVar(&buildRelease, "release", "", "Check artifact versions against this release tag, as a run would")
	return cmd
}

func buildCommand(cmd *cobra.Command, args []string) error {
	cfg, projectDir, err := config.GetConfig(projectDirFlag)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "slipway-build-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	// Without --release there is no version to check artifacts against,
	// so that check is skipped.
	st := &pipeline.State{
		Event:       &event.Event{Release: event.Release{TagName: buildRelease}},
		Config:      cfg,
		Runner:      executor.NewLocal(),
		WorkDir:     workDir,
		CheckoutDir: projectDir,
		LocalSource: true,
	}
	engine := &pipeline.Engine{}
	steps := []pipeline.Step{
		pipeline.CheckoutStep{},
		pipeline.RuntimeStep{},
		pipeline.ToolchainStep{},
		pipeline.BuildStep{},
	}
	if err := engine.Run(cmd.Context(), steps, st); err != nil {
		return err
	}

	console.Infof("\nBuilt %d artifact(s); publish with a release or with `slipway publish`", len(st.Artifacts))
	return nil
}
