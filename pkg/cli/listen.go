package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/event"
	"github.com/slipway-ci/slipway/pkg/store"
	"github.com/slipway-ci/slipway/pkg/trigger"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

func newListenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen for release deliveries and run the pipeline",
		Long: `Run the webhook listener.

Deliveries are verified against the configured secret, filtered through
the trigger filter, deduplicated by delivery GUID, and executed one at a
time. Stop with SIGINT or SIGTERM; an in-flight run finishes first.`,
		Args: cobra.NoArgs,
		RunE: listenCommand,
	}
	addProjectDirFlag(cmd)
	return cmd
}

func listenCommand(cmd *cobra.Command, args []string) error {
	cfg, projectDir, err := config.GetConfig(projectDirFlag)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	listener, err := trigger.New(cfg, &runCoordinator{
		cfg:        cfg,
		projectDir: projectDir,
		store:      st,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return listener.Serve(ctx)
}

// runCoordinator backs the listener with the run history store for
// activation and dedup, and the pipeline engine for execution.
type runCoordinator struct {
	cfg        *config.Config
	projectDir string
	store      *store.Store
}

func (c *runCoordinator) Seen(ctx context.Context, deliveryID string) (bool, error) {
	return c.store.SeenDelivery(ctx, deliveryID)
}

func (c *runCoordinator) Activate(ctx context.Context, evt *event.Event, deliveryID string) (string, error) {
	run := &store.Run{
		DeliveryID: deliveryID,
		Repo:       evt.Repository.FullName,
		Tag:        evt.Release.TagName,
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

func (c *runCoordinator) Execute(ctx context.Context, runID string, evt *event.Event) error {
	runErr := executePipeline(ctx, c.cfg, c.projectDir, evt, c.store, runID, false)
	if err := c.store.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
		console.Warnf("failed to record outcome of run %s: %s", runID, err)
	}
	return runErr
}
