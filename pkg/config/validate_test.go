package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := DefaultConfig()
	c.applyDefaults()
	return c
}

func TestValidateAndCompleteDefaults(t *testing.T) {
	c := &Config{}
	require.NoError(t, c.ValidateAndComplete(""))
	require.Equal(t, DefaultTriggerEvent, c.Trigger.Event)
	require.Equal(t, DefaultUploadParallel, c.Publish.Parallel)
}

func TestValidateRejectsRuntimeVersionLiteral(t *testing.T) {
	c := validConfig()
	c.Runtime.Version = "3.12"

	err := c.ValidateAndComplete("")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "runtime.version", verr.Field)
	require.Contains(t, verr.Message, "project metadata")
}

func TestValidateRejectsNonReleaseTrigger(t *testing.T) {
	c := validConfig()
	c.Trigger.Event = "push"

	err := c.ValidateAndComplete("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "trigger.event")
}

func TestValidateRejectsBrokenFilter(t *testing.T) {
	c := validConfig()
	c.Trigger.Filter = map[string]interface{}{"action": map[string]interface{}{"$frobnicate": 1}}

	err := c.ValidateAndComplete("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "trigger.filter")
}

func TestValidateRejectsLiteralWebhookSecret(t *testing.T) {
	c := validConfig()
	c.Trigger.Webhook = &Webhook{Secret: "pypi-AgENdGVzdA"}

	err := c.ValidateAndComplete("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "environment reference")

	c.Trigger.Webhook.Secret = "${SLIPWAY_WEBHOOK_SECRET}"
	require.NoError(t, c.ValidateAndComplete(""))
}

func TestValidateTool(t *testing.T) {
	c := validConfig()
	c.Tool.Version = "1.2.2"
	c.Tool.Constraint = ">=1.0"
	err := c.ValidateAndComplete("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "only one of version or constraint")

	c = validConfig()
	c.Tool.Version = "not-a-version"
	require.Error(t, c.ValidateAndComplete(""))

	c = validConfig()
	c.Tool.Constraint = ">=1.0,<2.0"
	require.NoError(t, c.ValidateAndComplete(""))
}

func TestValidateBuild(t *testing.T) {
	c := validConfig()
	c.Build.OutDir = "/abs/path"
	require.Error(t, c.ValidateAndComplete(""))

	c = validConfig()
	c.Build.OutDir = "../outside"
	require.Error(t, c.ValidateAndComplete(""))

	c = validConfig()
	c.Build.Sandbox = &Sandbox{Image: "python:3.12-slim"}
	require.NoError(t, c.ValidateAndComplete(""))

	c.Build.Sandbox.Image = "NOT//A//VALID//REF"
	require.Error(t, c.ValidateAndComplete(""))
}

func TestValidatePublish(t *testing.T) {
	c := validConfig()
	c.Publish.Parallel = MaxUploadParallel + 1
	require.Error(t, c.ValidateAndComplete(""))

	c = validConfig()
	c.Publish.IndexURL = "ftp://example.org/upload"
	require.Error(t, c.ValidateAndComplete(""))

	c = validConfig()
	c.Publish.Artifacts = "dist/*.whl"
	require.NoError(t, c.ValidateAndComplete(""))

	c.Publish.Artifacts = "dist/[bad"
	require.Error(t, c.ValidateAndComplete(""))
}

func TestValidateArchive(t *testing.T) {
	c := validConfig()
	c.Archive = &Archive{Endpoint: "https://minio.example.org:9000"}
	err := c.ValidateAndComplete("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "archive.bucket")

	c.Archive.Bucket = "releases"
	require.NoError(t, c.ValidateAndComplete(""))

	c.Archive.Endpoint = "not a url"
	require.Error(t, c.ValidateAndComplete(""))
}

func TestValidateRuntimeVersionFile(t *testing.T) {
	dir := t.TempDir()
	c := validConfig()
	c.Runtime.VersionFile = "runtime.txt"

	err := c.ValidateAndComplete(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "runtime.version_file")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "runtime.txt"), []byte("3.12\n"), 0o644))
	require.NoError(t, c.ValidateAndComplete(dir))
}

func TestValidateReportsAllProblems(t *testing.T) {
	c := validConfig()
	c.Trigger.Event = "push"
	c.Runtime.Version = "3.12"
	c.Publish.Parallel = 99

	result := c.Validate("")
	require.True(t, result.HasErrors())
	require.GreaterOrEqual(t, len(result.Errors), 3)
}
