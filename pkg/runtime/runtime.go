// Package runtime provisions the interpreter a release builds with. The
// version comes from the project's own metadata under the released tag,
// is resolved against what the installer offers, installed, and probed.
package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/util"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// Runtime describes the interpreter a run was provisioned with.
type Runtime struct {
	// Declared is the constraint the project metadata states.
	Declared string
	// Source is the metadata file the declaration came from.
	Source string
	// Version is the concrete version that was installed.
	Version string
	// Probe is the probe command's output, e.g. "Python 3.12.8".
	Probe string
}

// Setup reads the declared runtime version, resolves it against the
// installer's available versions, installs the match and probes it.
func Setup(ctx context.Context, runner executor.Runner, projectDir string, cfg *config.Runtime) (*Runtime, error) {
	declaration, err := ReadDeclaration(projectDir, cfg)
	if err != nil {
		return nil, err
	}

	installer := config.DefaultInstaller
	if cfg != nil && cfg.Installer != "" {
		installer = cfg.Installer
	}

	out, err := runner.Output(ctx, executor.Command{
		Name: installer,
		Args: []string{"python", "list"},
		Dir:  projectDir,
	})
	if err != nil {
		return nil, util.WrapError(err, "failed to list available runtimes")
	}

	resolved, err := Resolve(declaration.Constraint, parseInstallerList(out))
	if err != nil {
		return nil, fmt.Errorf("%s declares %q: %w", declaration.Source, declaration.Constraint, err)
	}
	console.Infof("Installing runtime %s (%s declared in %s)", resolved, declaration.Constraint, declaration.Source)

	err = runner.Run(ctx, executor.Command{
		Name: installer,
		Args: []string{"python", "install", resolved},
		Dir:  projectDir,
	})
	if err != nil {
		return nil, util.WrapError(err, "failed to install runtime "+resolved)
	}

	probe, err := probeRuntime(ctx, runner, projectDir)
	if err != nil {
		return nil, err
	}
	console.Infof("Runtime ready: %s", probe)

	return &Runtime{
		Declared: declaration.Constraint,
		Source:   declaration.Source,
		Version:  resolved,
		Probe:    probe,
	}, nil
}

// probeRuntime confirms the interpreter answers after installation.
func probeRuntime(ctx context.Context, runner executor.Runner, projectDir string) (string, error) {
	fields := strings.Fields(config.DefaultRuntimeProbe)
	out, err := runner.Output(ctx, executor.Command{
		Name: fields[0],
		Args: fields[1:],
		Dir:  projectDir,
	})
	if err != nil {
		return "", util.WrapError(err, "installed runtime did not answer the probe")
	}
	return strings.TrimSpace(string(out)), nil
}
