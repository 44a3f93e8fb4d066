// Package pipeline sequences the steps of one release run. Steps run
// strictly in order, the first failure aborts the rest, and progress is
// mirrored into the run history when a recorder is attached.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/slipway-ci/slipway/pkg/build"
	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/event"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/publish"
	"github.com/slipway-ci/slipway/pkg/runtime"
	"github.com/slipway-ci/slipway/pkg/store"
	"github.com/slipway-ci/slipway/pkg/toolchain"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// State carries what steps produce and consume. The event, config,
// runner and work directory are set by the caller; everything else is
// filled in as steps complete.
type State struct {
	Event  *event.Event
	Config *config.Config
	Runner executor.Runner

	// WorkDir is the run's scratch directory.
	WorkDir string
	// CheckoutDir is the source tree steps operate on. The checkout step
	// sets it; with LocalSource the caller points it at the project
	// directory and no clone happens.
	CheckoutDir string
	LocalSource bool

	Revision    string
	Fingerprint string
	Runtime     *runtime.Runtime
	Tool        *toolchain.Tool
	Artifacts   []*build.Artifact
	Publish     *publish.Result
	// Archived holds the object keys the archive step wrote.
	Archived []string
}

// Step is one pipeline stage.
type Step interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// Recorder receives run progress. store.Store implements it; a nil
// Recorder records nothing.
type Recorder interface {
	SetStep(ctx context.Context, id, step string) error
	SetSource(ctx context.Context, id, revision, fingerprint string) error
	AddArtifacts(ctx context.Context, runID string, artifacts []store.Artifact) error
	MarkUploaded(ctx context.Context, runID, filename string) error
}

// Engine runs steps in order. Recording failures log a warning and
// nothing more; history must never break delivery.
type Engine struct {
	Recorder Recorder
	RunID    string
}

// Run executes steps sequentially against st. The first failing step
// aborts the remainder, its error wrapped with the step name. A
// canceled context aborts between steps; steps observe it themselves
// while running.
func (e *Engine) Run(ctx context.Context, steps []Step, st *State) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.recordStep(ctx, step.Name())
		console.Infof("=== %s", step.Name())
		start := time.Now()
		if err := step.Run(ctx, st); err != nil {
			return fmt.Errorf("step %s: %w", step.Name(), err)
		}
		console.Debugf("step %s took %s", step.Name(), time.Since(start).Round(time.Millisecond))
		e.recordOutcome(ctx, step.Name(), st)
	}
	return nil
}

func (e *Engine) recordStep(ctx context.Context, name string) {
	if e.Recorder == nil {
		return
	}
	if err := e.Recorder.SetStep(ctx, e.RunID, name); err != nil {
		console.Warnf("failed to record step %s: %s", name, err)
	}
}

// recordOutcome mirrors what a completed step left in the state into
// the run history.
func (e *Engine) recordOutcome(ctx context.Context, name string, st *State) {
	if e.Recorder == nil {
		return
	}
	switch name {
	case StepCheckout:
		if err := e.Recorder.SetSource(ctx, e.RunID, st.Revision, st.Fingerprint); err != nil {
			console.Warnf("failed to record source for run %s: %s", e.RunID, err)
		}
	case StepBuild:
		records := make([]store.Artifact, 0, len(st.Artifacts))
		for _, artifact := range st.Artifacts {
			records = append(records, store.Artifact{
				RunID:    e.RunID,
				Filename: artifact.Filename,
				Kind:     artifact.Kind,
				Size:     artifact.Size,
				SHA256:   artifact.SHA256,
			})
		}
		if err := e.Recorder.AddArtifacts(ctx, e.RunID, records); err != nil {
			console.Warnf("failed to record artifacts for run %s: %s", e.RunID, err)
		}
	case StepPublish:
		if st.Publish == nil {
			return
		}
		// Skipped files are already on the index, which is exactly what
		// the uploaded flag records.
		for _, filename := range st.Publish.Uploaded {
			e.markUploaded(ctx, filename)
		}
		for _, filename := range st.Publish.Skipped {
			e.markUploaded(ctx, filename)
		}
	}
}

func (e *Engine) markUploaded(ctx context.Context, filename string) {
	if err := e.Recorder.MarkUploaded(ctx, e.RunID, filename); err != nil {
		console.Warnf("failed to record upload of %s: %s", filename, err)
	}
}
