package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/publish"
	"github.com/slipway-ci/slipway/pkg/settings"
)

// errNoIssuer stands in for the error NewTrusted returns on a host with
// no identity issuer.
var errNoIssuer = errors.New("no identity token issuer configured")

func publishConfig() *config.Publish {
	return &config.Publish{
		IndexURL:     "https://upload.example.test/legacy/",
		SimpleURL:    "https://example.test/simple/",
		SkipExisting: true,
		Parallel:     2,
	}
}

func TestStoredTokenPublisher(t *testing.T) {
	cfg := publishConfig()
	userSettings := &settings.Settings{}
	userSettings.SetToken(cfg.IndexURL, "pypi-AgEIcHlwaS5vcmc")

	publisher, err := storedTokenPublisher(cfg, userSettings, errNoIssuer)
	require.NoError(t, err)
	require.Equal(t, publish.StaticSource("pypi-AgEIcHlwaS5vcmc"), publisher.Tokens)
	require.Equal(t, cfg.IndexURL, publisher.Index.UploadURL)
	require.True(t, publisher.SkipExisting)
	require.Equal(t, 2, publisher.Parallel)
}

func TestStoredTokenPublisherWithoutToken(t *testing.T) {
	_, err := storedTokenPublisher(publishConfig(), &settings.Settings{}, errNoIssuer)
	require.ErrorContains(t, err, "slipway login")
	require.ErrorContains(t, err, "no identity token issuer")
}
