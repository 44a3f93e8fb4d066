package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/configfile"
	"github.com/docker/docker/api/types/registry"

	"github.com/slipway-ci/slipway/pkg/util/console"
)

// registryAuth returns the encoded pull credentials for host from the
// local docker config, or "" when none are configured. Missing
// credentials are not an error; public images pull anonymously.
func registryAuth(ctx context.Context, host string) string {
	conf := config.LoadDefaultConfigFile(os.Stderr)
	auth, ok := authForHost(ctx, conf, host)
	if !ok {
		console.Debugf("no registry credentials for %s", host)
		return ""
	}
	encoded, err := registry.EncodeAuthConfig(auth)
	if err != nil {
		console.Debugf("failed to encode auth config for %s: %s", host, err)
		return ""
	}
	return encoded
}

func authForHost(ctx context.Context, conf *configfile.ConfigFile, host string) (registry.AuthConfig, bool) {
	// The credentials store takes precedence when one is set.
	if conf.CredentialsStore != "" {
		creds, err := credentialHelperGet(ctx, conf.CredentialsStore, host)
		if err != nil {
			console.Debugf("credentials store lookup for %s failed: %s", host, err)
			return registry.AuthConfig{}, false
		}
		return registry.AuthConfig{
			Username:      creds.Username,
			Password:      creds.Secret,
			ServerAddress: host,
		}, true
	}

	stored, ok := conf.AuthConfigs[host]
	if !ok {
		return registry.AuthConfig{}, false
	}
	return registry.AuthConfig{
		Username:      stored.Username,
		Password:      stored.Password,
		Auth:          stored.Auth,
		ServerAddress: host,
		IdentityToken: stored.IdentityToken,
		RegistryToken: stored.RegistryToken,
	}, true
}

// credentialHelperOutput matches the json a docker credential helper
// writes for "get".
type credentialHelperOutput struct {
	Username string
	Secret   string
}

// credentialHelperGet asks the configured docker-credential-<store>
// helper for the credentials of registryHost.
func credentialHelperGet(ctx context.Context, credsStore string, registryHost string) (*credentialHelperOutput, error) {
	var out strings.Builder
	cmd := exec.CommandContext(ctx, "docker-credential-"+credsStore, "get")
	cmd.Env = os.Environ()
	cmd.Stdout = &out
	cmd.Stderr = &out
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	defer stdin.Close()

	console.Debug("$ " + strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(stdin, registryHost); err != nil {
		return nil, err
	}
	if err := stdin.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("credential helper failed: %w: %s", err, strings.TrimSpace(out.String()))
	}

	var creds credentialHelperOutput
	if err := json.Unmarshal([]byte(out.String()), &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}
