package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var offered = []string{"3.10.14", "3.11.9", "3.12.3", "3.12.8", "3.13.1", "3.14.0-rc1"}

func TestResolve(t *testing.T) {
	for declared, want := range map[string]string{
		"3.12":            "3.12.8",
		"3.12.3":          "3.12.3",
		">=3.11,<3.13":    "3.12.8",
		">=3.12":          "3.13.1",
		"~=3.11":          "3.13.1",
		"~=3.12.3":        "3.12.8",
		"==3.12.*":        "3.12.8",
		">=3.10,!=3.13.1": "3.12.8",
	} {
		got, err := Resolve(declared, offered)
		require.NoError(t, err, "declared %q", declared)
		require.Equal(t, want, got, "declared %q", declared)
	}
}

func TestResolveSkipsPrereleases(t *testing.T) {
	got, err := Resolve(">=3.13", offered)
	require.NoError(t, err)
	require.Equal(t, "3.13.1", got)
}

func TestResolveNoMatch(t *testing.T) {
	_, err := Resolve("3.99", offered)
	require.Error(t, err)
	require.Contains(t, err.Error(), `no available runtime satisfies "3.99"`)
}

func TestResolveBadDeclaration(t *testing.T) {
	_, err := Resolve("latest", offered)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot parse")

	_, err = Resolve("", offered)
	require.Error(t, err)
}

func TestParseInstallerList(t *testing.T) {
	out := []byte(`cpython-3.13.1-linux-x86_64-gnu                 <download available>
cpython-3.12.8-linux-x86_64-gnu                 /usr/bin/python3.12
cpython-3.12.8-linux-aarch64-gnu                <download available>
pypy-3.10.14-linux-x86_64-gnu                   <download available>

`)
	require.Equal(t, []string{"3.13.1", "3.12.8"}, parseInstallerList(out))
	require.Empty(t, parseInstallerList(nil))
}
