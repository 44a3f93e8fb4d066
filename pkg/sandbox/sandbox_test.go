package sandbox

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/docker/cli/cli/config/configfile"
	"github.com/docker/cli/cli/config/types"
	"github.com/stretchr/testify/require"

	"github.com/slipway-ci/slipway/pkg/config"
)

func TestNewRequiresImage(t *testing.T) {
	_, err := New(context.Background(), nil, t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no sandbox image configured")

	_, err = New(context.Background(), &config.Sandbox{}, t.TempDir())
	require.Error(t, err)
}

func TestNewRejectsInvalidImage(t *testing.T) {
	_, err := New(context.Background(), &config.Sandbox{Image: "not a valid ref"}, t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid sandbox image")
}

func TestContainerWorkdir(t *testing.T) {
	hostDir := filepath.Join("/", "work", "checkout")

	for _, tt := range []struct {
		name   string
		cmdDir string
		want   string
	}{
		{"empty", "", "/src"},
		{"mount root", hostDir, "/src"},
		{"subdirectory", filepath.Join(hostDir, "pkg", "inner"), "/src/pkg/inner"},
		{"outside mount", filepath.Join("/", "elsewhere"), "/src"},
		{"parent of mount", filepath.Join("/", "work"), "/src"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, containerWorkdir(hostDir, tt.cmdDir))
		})
	}
}

func TestContainerEnv(t *testing.T) {
	env := []string{
		"PATH=/usr/bin:/bin",
		"HOME=/home/someone",
		"LANG=en_US.UTF-8",
		"SOURCE_DATE_EPOCH=1700000000",
		"TERM=xterm",
		"SHELL=/bin/zsh",
	}
	require.Equal(t, []string{
		"LANG=en_US.UTF-8",
		"SOURCE_DATE_EPOCH=1700000000",
	}, containerEnv(env))
}

func TestContainerEnvEmpty(t *testing.T) {
	require.Empty(t, containerEnv(nil))
	require.Empty(t, containerEnv([]string{"PATH=/usr/bin"}))
}

func TestAuthForHostFromConfigFile(t *testing.T) {
	conf := &configfile.ConfigFile{
		AuthConfigs: map[string]types.AuthConfig{
			"registry.example.com": {
				Username: "someone",
				Password: "hunter2",
			},
		},
	}

	auth, ok := authForHost(context.Background(), conf, "registry.example.com")
	require.True(t, ok)
	require.Equal(t, "someone", auth.Username)
	require.Equal(t, "hunter2", auth.Password)
	require.Equal(t, "registry.example.com", auth.ServerAddress)

	_, ok = authForHost(context.Background(), conf, "other.example.com")
	require.False(t, ok)
}

func TestTailWriter(t *testing.T) {
	w := &tailWriter{limit: 16}
	_, err := w.Write([]byte("first line\nsecond"))
	require.NoError(t, err)
	_, err = w.Write([]byte(" half\n"))
	require.NoError(t, err)
	w.Flush()

	// Only the last 16 bytes survive.
	require.Equal(t, "ine\nsecond half", w.Tail())
}

func TestTailWriterShortOutput(t *testing.T) {
	w := &tailWriter{limit: 1024}
	_, err := w.Write([]byte("all of it\n"))
	require.NoError(t, err)
	require.Equal(t, "all of it", w.Tail())
}
