// Package toolchain installs the build tool at a deliberate version
// before the build step runs, so rebuilding an old release does not
// silently pick up a newer tool.
package toolchain

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-version"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/util"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// VersionLister lists a project's released versions, newest knowledge
// coming from the index's simple API.
type VersionLister interface {
	ProjectVersions(ctx context.Context, project string) ([]string, error)
}

// Tool is the build tool a run installed.
type Tool struct {
	Name    string
	Version string
}

// Install resolves the build tool version and installs it into the
// runtime: an exact pin from config, a constraint resolved against the
// index, or the index's latest stable release.
func Install(ctx context.Context, runner executor.Runner, versions VersionLister, projectDir string, cfg *config.Tool) (*Tool, error) {
	name := config.DefaultToolName
	if cfg != nil && cfg.Name != "" {
		name = cfg.Name
	}

	resolved, err := resolveVersion(ctx, versions, name, cfg)
	if err != nil {
		return nil, err
	}
	console.Infof("Installing build tool %s==%s", name, resolved)

	err = runner.Run(ctx, executor.Command{
		Name: "python",
		Args: []string{"-m", "pip", "install", "--upgrade", name + "==" + resolved},
		Dir:  projectDir,
	})
	if err != nil {
		return nil, util.WrapError(err, fmt.Sprintf("failed to install %s %s", name, resolved))
	}
	return &Tool{Name: name, Version: resolved}, nil
}

func resolveVersion(ctx context.Context, versions VersionLister, name string, cfg *config.Tool) (string, error) {
	if cfg != nil && cfg.Version != "" {
		return cfg.Version, nil
	}

	available, err := versions.ProjectVersions(ctx, name)
	if err != nil {
		return "", util.WrapError(err, "failed to resolve "+name+" version")
	}

	var constraints version.Constraints
	if cfg != nil && cfg.Constraint != "" {
		constraints, err = version.NewConstraint(cfg.Constraint)
		if err != nil {
			return "", fmt.Errorf("invalid tool constraint %q: %w", cfg.Constraint, err)
		}
	}

	var candidates []*version.Version
	for _, raw := range available {
		v, err := version.NewVersion(raw)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if constraints != nil && !constraints.Check(v) {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		if cfg != nil && cfg.Constraint != "" {
			return "", fmt.Errorf("no release of %s satisfies %q", name, cfg.Constraint)
		}
		return "", fmt.Errorf("no stable release of %s on the index", name)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Compare(candidates[j]) > 0
	})
	return candidates[0].Original(), nil
}
