package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/slipway-ci/slipway/pkg/global"
)

func TestFromYAMLDefaults(t *testing.T) {
	config, err := FromYAML([]byte("project: widget\n"))
	require.NoError(t, err)

	require.Equal(t, "widget", config.Project)
	require.Equal(t, DefaultTriggerEvent, config.Trigger.Event)
	require.Equal(t, DefaultBuildCommand, config.Build.Command)
	require.Equal(t, DefaultOutDir, config.Build.OutDir)
	require.True(t, config.Build.CheckVersion)
	require.Equal(t, DefaultToolName, config.Tool.Name)
	require.Equal(t, DefaultInstaller, config.Runtime.Installer)
	require.Equal(t, global.DefaultIndexURL, config.Publish.IndexURL)
	require.Equal(t, global.DefaultSimpleURL, config.Publish.SimpleURL)
	require.Equal(t, DefaultUploadParallel, config.Publish.Parallel)
	require.Nil(t, config.Archive)
}

func TestFromYAMLEmpty(t *testing.T) {
	config, err := FromYAML([]byte(""))
	require.NoError(t, err)
	require.Equal(t, DefaultTriggerEvent, config.Trigger.Event)
	require.Equal(t, map[string]interface{}{"action": DefaultTriggerAction}, config.EffectiveFilter())
}

func TestFromYAMLFullDocument(t *testing.T) {
	contents := []byte(`
project: widget
trigger:
  event: release
  filter:
    action: published
    release.prerelease: false
  webhook:
    secret: ${SLIPWAY_WEBHOOK_SECRET}
runtime:
  version_file: .python-version
  installer: uv
tool:
  name: build
  version: 1.2.2
build:
  command: python -m build --sdist --wheel
  out_dir: dist
  check_version: false
  env:
    SOURCE_DATE_EPOCH: "0"
publish:
  index_url: https://upload.example.org/legacy/
  simple_url: https://example.org/simple/
  audience: example
  skip_existing: true
  parallel: 2
archive:
  endpoint: https://minio.example.org:9000
  bucket: releases
  prefix: widget/
`)
	config, err := FromYAML(contents)
	require.NoError(t, err)

	require.False(t, config.Build.CheckVersion)
	require.Equal(t, map[string]string{"SOURCE_DATE_EPOCH": "0"}, config.Build.Env)
	require.Equal(t, DefaultWebhookPath, config.Trigger.Webhook.Path)

	wantPublish := &Publish{
		IndexURL:     "https://upload.example.org/legacy/",
		SimpleURL:    "https://example.org/simple/",
		Audience:     "example",
		SkipExisting: true,
		Parallel:     2,
	}
	require.Empty(t, cmp.Diff(wantPublish, config.Publish))

	wantArchive := &Archive{
		Endpoint: "https://minio.example.org:9000",
		Bucket:   "releases",
		Prefix:   "widget/",
		Region:   DefaultArchiveRegion,
	}
	require.Empty(t, cmp.Diff(wantArchive, config.Archive))

	filter := config.EffectiveFilter()
	require.Contains(t, filter, "release.prerelease")
}

func TestFromYAMLUnknownField(t *testing.T) {
	_, err := FromYAML([]byte("pipeline: {}\n"))
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestFromYAMLWrongType(t *testing.T) {
	_, err := FromYAML([]byte("build:\n  check_version: sometimes\n"))
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Contains(t, schemaErr.Field, "check_version")
}

func TestFromYAMLUnparseable(t *testing.T) {
	_, err := FromYAML([]byte("build: [unclosed\n"))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestIsEnvReference(t *testing.T) {
	require.True(t, IsEnvReference("${SLIPWAY_WEBHOOK_SECRET}"))
	require.True(t, IsEnvReference("${_x1}"))
	require.False(t, IsEnvReference("hunter2"))
	require.False(t, IsEnvReference("${}"))
	require.False(t, IsEnvReference("${1BAD}"))
	require.False(t, IsEnvReference("prefix${VAR}"))
}

func TestResolveSecret(t *testing.T) {
	w := &Webhook{Secret: "${SLIPWAY_TEST_SECRET}"}

	_, err := w.ResolveSecret()
	require.Error(t, err)

	t.Setenv("SLIPWAY_TEST_SECRET", "s3cret")
	secret, err := w.ResolveSecret()
	require.NoError(t, err)
	require.Equal(t, "s3cret", secret)

	literal := &Webhook{Secret: "hunter2"}
	_, err = literal.ResolveSecret()
	require.Error(t, err)
	require.Contains(t, err.Error(), "environment reference")
}
