package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	exists, err := Exists(path)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = Exists(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestIsEmpty(t *testing.T) {
	dir := t.TempDir()

	empty, err := IsEmpty(dir)
	require.NoError(t, err)
	require.True(t, empty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644))
	empty, err = IsEmpty(dir)
	require.NoError(t, err)
	require.False(t, empty)

	empty, err = IsEmpty(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.True(t, empty)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "nested", "dest.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, CopyFile(src, dest))

	copied, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), copied)
}
