package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway-ci/slipway/pkg/build"
	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/index"
	"github.com/slipway-ci/slipway/pkg/publish"
	"github.com/slipway-ci/slipway/pkg/settings"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish already-built artifacts from the output directory",
		Long: `Upload whatever the build output directory holds.

Trusted publishing is used when the environment provides an identity
issuer; otherwise the upload token stored by ` + "`slipway login`" + ` serves as
a fallback for manual publishes from a workstation.`,
		Args: cobra.NoArgs,
		RunE: publishCommand,
	}
	addProjectDirFlag(cmd)
	return cmd
}

func publishCommand(cmd *cobra.Command, args []string) error {
	cfg, projectDir, err := config.GetConfig(projectDirFlag)
	if err != nil {
		return err
	}

	artifacts, err := build.Collect(projectDir, cfg.Build.OutDir)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg.Publish)
	if err != nil {
		return err
	}
	result, err := publisher.Publish(cmd.Context(), artifacts)
	if err != nil {
		return err
	}

	console.Infof("\nPublished %d artifact(s), %d already on the index", len(result.Uploaded), len(result.Skipped))
	return nil
}

// newPublisher prefers trusted publishing and falls back to a stored
// upload token when the host provides no identity issuer.
func newPublisher(cfg *config.Publish) (*publish.Publisher, error) {
	publisher, trustedErr := publish.NewTrusted(cfg)
	if trustedErr == nil {
		return publisher, nil
	}
	console.Debugf("trusted publishing unavailable: %s", trustedErr)

	userSettings, err := settings.Load()
	if err != nil {
		return nil, err
	}
	return storedTokenPublisher(cfg, userSettings, trustedErr)
}

// storedTokenPublisher builds a Publisher around the token `slipway
// login` stored for the effective upload endpoint.
func storedTokenPublisher(cfg *config.Publish, userSettings *settings.Settings, trustedErr error) (*publish.Publisher, error) {
	client, err := index.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	token := userSettings.Token(client.UploadURL)
	if token == "" {
		return nil, fmt.Errorf("no stored token for %s (and trusted publishing is unavailable: %s); run `slipway login` first", client.UploadURL, trustedErr)
	}
	console.Infof("Using the stored token for %s", client.UploadURL)
	return &publish.Publisher{
		Index:        client,
		Tokens:       publish.StaticSource(token),
		Parallel:     cfg.Parallel,
		SkipExisting: cfg.SkipExisting,
	}, nil
}
