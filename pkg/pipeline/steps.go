package pipeline

import (
	"context"
	"path/filepath"

	"github.com/slipway-ci/slipway/pkg/archive"
	"github.com/slipway-ci/slipway/pkg/build"
	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/index"
	"github.com/slipway-ci/slipway/pkg/publish"
	"github.com/slipway-ci/slipway/pkg/runtime"
	"github.com/slipway-ci/slipway/pkg/sandbox"
	"github.com/slipway-ci/slipway/pkg/source"
	"github.com/slipway-ci/slipway/pkg/toolchain"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// Canonical step names, in run order.
const (
	StepCheckout  = "checkout"
	StepRuntime   = "runtime"
	StepToolchain = "toolchain"
	StepBuild     = "build"
	StepPublish   = "publish"
	StepArchive   = "archive"
)

// Steps returns the step sequence for cfg: checkout, runtime, toolchain,
// build, publish, plus archive when one is configured.
func Steps(cfg *config.Config) []Step {
	steps := []Step{
		CheckoutStep{},
		RuntimeStep{},
		ToolchainStep{},
		BuildStep{},
		PublishStep{},
	}
	if cfg.Archive != nil {
		steps = append(steps, ArchiveStep{})
	}
	return steps
}

// CheckoutStep clones the released tag, verifies its revision against
// the event and fingerprints the tree. With LocalSource the project
// directory is used in place and only fingerprinted.
type CheckoutStep struct{}

func (CheckoutStep) Name() string { return StepCheckout }

func (CheckoutStep) Run(ctx context.Context, st *State) error {
	if st.LocalSource {
		console.Infof("Using %s in place, checkout skipped", st.CheckoutDir)
		// Best effort: a local project directory is usually a git
		// checkout, but nothing requires it to be.
		if revision, err := source.Revision(ctx, st.Runner, st.CheckoutDir); err == nil {
			st.Revision = revision
		}
	} else {
		dest := filepath.Join(st.WorkDir, "checkout")
		revision, err := source.Checkout(ctx, st.Runner, st.Event.Repository.CloneURL, st.Event.Release.TagName, dest)
		if err != nil {
			return err
		}
		if err := source.VerifyRevision(revision, st.Event.Revision()); err != nil {
			return err
		}
		st.CheckoutDir = dest
		st.Revision = revision
	}

	fingerprint, err := source.Fingerprint(st.CheckoutDir)
	if err != nil {
		return err
	}
	st.Fingerprint = fingerprint
	console.Debugf("source fingerprint %s", fingerprint)
	return nil
}

// RuntimeStep provisions the interpreter the project metadata declares.
type RuntimeStep struct{}

func (RuntimeStep) Name() string { return StepRuntime }

func (RuntimeStep) Run(ctx context.Context, st *State) error {
	rt, err := runtime.Setup(ctx, st.Runner, st.CheckoutDir, st.Config.Runtime)
	if err != nil {
		return err
	}
	st.Runtime = rt
	return nil
}

// ToolchainStep installs the build tool, resolving its version against
// the index when no exact pin is configured.
type ToolchainStep struct{}

func (ToolchainStep) Name() string { return StepToolchain }

func (ToolchainStep) Run(ctx context.Context, st *State) error {
	client, err := index.NewClient(st.Config.Publish)
	if err != nil {
		return err
	}
	tool, err := toolchain.Install(ctx, st.Runner, client, st.CheckoutDir, st.Config.Tool)
	if err != nil {
		return err
	}
	st.Tool = tool
	return nil
}

// BuildStep produces the artifacts, in a sandbox container when one is
// configured.
type BuildStep struct{}

func (BuildStep) Name() string { return StepBuild }

func (BuildStep) Run(ctx context.Context, st *State) error {
	runner := st.Runner
	if st.Config.Build != nil && st.Config.Build.Sandbox != nil {
		sandboxed, err := sandbox.New(ctx, st.Config.Build.Sandbox, st.CheckoutDir)
		if err != nil {
			return err
		}
		runner = sandboxed
	}

	artifacts, err := build.Run(ctx, runner, st.CheckoutDir, st.Config.Build, st.Event.Version())
	if err != nil {
		return err
	}
	st.Artifacts = artifacts
	return nil
}

// PublishStep uploads the artifacts under a token minted for this run.
type PublishStep struct{}

func (PublishStep) Name() string { return StepPublish }

func (PublishStep) Run(ctx context.Context, st *State) error {
	publisher, err := publish.NewTrusted(st.Config.Publish)
	if err != nil {
		return err
	}
	result, err := publisher.Publish(ctx, st.Artifacts)
	if err != nil {
		return err
	}
	st.Publish = result
	return nil
}

// ArchiveStep copies the published artifacts to object storage. It only
// appears in the step list when an archive is configured, and it fails
// the run like any other step.
type ArchiveStep struct{}

func (ArchiveStep) Name() string { return StepArchive }

func (ArchiveStep) Run(ctx context.Context, st *State) error {
	archiver, err := archive.New(st.Config.Archive)
	if err != nil {
		return err
	}
	keys, err := archiver.Archive(ctx, st.Artifacts)
	if err != nil {
		return err
	}
	st.Archived = keys
	return nil
}
