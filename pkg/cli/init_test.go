package cli

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slipway-ci/slipway/pkg/lint"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()
	projectDirFlag = dir
	defer func() { projectDirFlag = "" }()

	require.NoError(t, initCommand(nil, []string{}))

	require.FileExists(t, path.Join(dir, "slipway.yaml"))
	require.FileExists(t, path.Join(dir, ".github", "workflows", "release.yaml"))

	// The scaffold has to hold up to slipway's own linting.
	report, _, err := lint.CheckProject(dir)
	require.NoError(t, err)
	require.Empty(t, report.Problems)
}

func TestInitSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	projectDirFlag = dir
	defer func() { projectDirFlag = "" }()

	custom := []byte("project: custom\n")
	require.NoError(t, os.WriteFile(path.Join(dir, "slipway.yaml"), custom, 0o644))

	require.NoError(t, initCommand(nil, []string{}))

	content, err := os.ReadFile(path.Join(dir, "slipway.yaml"))
	require.NoError(t, err)
	require.Equal(t, custom, content)
	require.FileExists(t, path.Join(dir, ".github", "workflows", "release.yaml"))
}
