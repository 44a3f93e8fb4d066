package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/event"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/match"
	"github.com/slipway-ci/slipway/pkg/pipeline"
	"github.com/slipway-ci/slipway/pkg/store"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

var eventFile string
var noCheckout bool

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the release pipeline once for an event payload",
		Long: `Run the release pipeline once.

The payload goes through the same activation decision the listener
makes: only a delivery matching the trigger filter starts a run. Hosted
CI passes the payload it received, e.g.

  slipway run --event "$GITHUB_EVENT_PATH"`,
		Args: cobra.NoArgs,
		RunE: runPipelineCommand,
	}
	addProjectDirFlag(cmd)
	cmd.Flags().StringVarP(&eventFile, "event", "e", "", "Path to the release event payload (JSON)")
	cmd.Flags().BoolVar(&noCheckout, "no-checkout", false, "Use the project directory in place instead of cloning the released tag")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func runPipelineCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, projectDir, err := config.GetConfig(projectDirFlag)
	if err != nil {
		return err
	}

	evt, err := event.LoadFile(eventFile)
	if err != nil {
		return err
	}
	activated, err := activates(cfg, evt)
	if err != nil {
		return err
	}
	if !activated {
		console.Infof("%s does not activate the pipeline, nothing to do", evt.Describe())
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run := &store.Run{Repo: evt.Repository.FullName, Tag: evt.Release.TagName}
	if err := st.CreateRun(ctx, run); err != nil {
		return err
	}
	console.Infof("Run %s: %s", run.ID, evt.Describe())

	runErr := executePipeline(ctx, cfg, projectDir, evt, st, run.ID, noCheckout)
	if err := st.FinishRun(context.WithoutCancel(ctx), run.ID, runErr); err != nil {
		console.Warnf("failed to record outcome of run %s: %s", run.ID, err)
	}
	if runErr != nil {
		return runErr
	}
	console.Infof("Run %s succeeded", run.ID)
	return nil
}

// activates applies the listener's activation decision to a payload in
// hand: the trigger filter must match and the event must carry what a
// run needs. Event type and delivery dedup are webhook concerns with no
// equivalent for a payload file.
func activates(cfg *config.Config, evt *event.Event) (bool, error) {
	query := match.NewQuery(cfg.EffectiveFilter())
	if err := query.Validate(); err != nil {
		return false, fmt.Errorf("invalid trigger filter: %w", err)
	}
	matched, err := query.Match(evt.Payload())
	if err != nil {
		return false, fmt.Errorf("trigger filter failed: %w", err)
	}
	if !matched {
		return false, nil
	}
	if err := evt.Validate(); err != nil {
		return false, err
	}
	return true, nil
}

// executePipeline performs one pipeline run in a fresh scratch
// directory. localSource skips the clone and builds projectDir in place.
func executePipeline(ctx context.Context, cfg *config.Config, projectDir string, evt *event.Event, recorder pipeline.Recorder, runID string, localSource bool) error {
	workDir, err := os.MkdirTemp("", "slipway-run-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	st := &pipeline.State{
		Event:   evt,
		Config:  cfg,
		Runner:  executor.NewLocal(),
		WorkDir: workDir,
	}
	if localSource {
		st.CheckoutDir = projectDir
		st.LocalSource = true
	}
	engine := &pipeline.Engine{Recorder: recorder, RunID: runID}
	return engine.Run(ctx, pipeline.Steps(cfg), st)
}
