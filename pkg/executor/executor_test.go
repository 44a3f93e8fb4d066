package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalOutput(t *testing.T) {
	local := NewLocal()
	out, err := local.Output(context.Background(), Command{Name: "echo", Args: []string{"hello"}})
	require.NoError(t, err)
	require.Equal(t, "hello", strings.TrimSpace(string(out)))
}

func TestLocalOutputFailure(t *testing.T) {
	local := NewLocal()
	_, err := local.Output(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "oops")
}

func TestLocalRunFailureCarriesOutput(t *testing.T) {
	local := NewLocal()
	err := local.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo broken; exit 1"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}

func TestLocalRunDir(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	local := NewLocal()
	out, err := local.Output(context.Background(), Command{Name: "pwd", Dir: dir})
	require.NoError(t, err)
	require.Equal(t, resolved, strings.TrimSpace(string(out)))
}

func TestLocalRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	local := NewLocal()
	err := local.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	require.Error(t, err)
}

func TestCommandString(t *testing.T) {
	require.Equal(t, "git", Command{Name: "git"}.String())
	require.Equal(t, "git rev-parse HEAD", Command{Name: "git", Args: []string{"rev-parse", "HEAD"}}.String())
}

func TestScrubbedEnv(t *testing.T) {
	t.Setenv("SLIPWAY_SUPER_SECRET", "x")
	env := ScrubbedEnv()
	for _, kv := range env {
		require.False(t, strings.HasPrefix(kv, "SLIPWAY_SUPER_SECRET="))
	}
}

func TestMockRecordsCalls(t *testing.T) {
	mock := &Mock{
		OutputFunc: func(cmd Command) ([]byte, error) {
			if cmd.Name == "git" {
				return []byte("abc123\n"), nil
			}
			return nil, errors.New("unexpected command")
		},
	}

	out, err := mock.Output(context.Background(), Command{Name: "git", Args: []string{"rev-parse", "HEAD"}})
	require.NoError(t, err)
	require.Equal(t, "abc123\n", string(out))

	require.NoError(t, mock.Run(context.Background(), Command{Name: "uv", Args: []string{"python", "install", "3.12"}}))

	require.Equal(t, []string{"git rev-parse HEAD", "uv python install 3.12"}, mock.CommandLines())
	require.Equal(t, "uv", mock.LastCall().Name)
}
