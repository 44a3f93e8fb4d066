package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	settings, err := loadFrom(path)
	require.NoError(t, err)
	require.Empty(t, settings.Tokens)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	settings := &Settings{}
	settings.SetToken("https://upload.pypi.org/legacy/", "pypi-abc123")
	require.NoError(t, settings.saveTo(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := loadFrom(path)
	require.NoError(t, err)
	require.Equal(t, "pypi-abc123", loaded.Token("https://upload.pypi.org/legacy/"))
}

func TestLoadFromCorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := loadFrom(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse")
}

func TestTokenNormalizesIndexURL(t *testing.T) {
	settings := &Settings{}
	settings.SetToken("https://upload.pypi.org/legacy/", "pypi-abc123")

	require.Equal(t, "pypi-abc123", settings.Token("https://upload.pypi.org/legacy"))
	require.Equal(t, "pypi-abc123", settings.Token("https://upload.pypi.org/legacy/"))
	require.Equal(t, "", settings.Token("https://test.pypi.org/legacy/"))
}

func TestDeleteToken(t *testing.T) {
	settings := &Settings{}
	settings.SetToken("https://upload.pypi.org/legacy/", "pypi-abc123")
	settings.DeleteToken("https://upload.pypi.org/legacy")

	require.Equal(t, "", settings.Token("https://upload.pypi.org/legacy/"))
}
