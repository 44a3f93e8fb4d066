// Package build runs the artifact-producing step and collects what came
// out of it. The build command runs with a scrubbed environment, so the
// only credentials in the process tree are the ones the publish step
// mints later.
package build

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/util"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// Run executes the build command and returns the artifacts it produced.
// releaseVersion is the version the release tag names; unless the check
// is disabled, every artifact must carry it. An empty releaseVersion
// skips the check, for local builds with no release in hand.
func Run(ctx context.Context, runner executor.Runner, projectDir string, cfg *config.Build, releaseVersion string) ([]*Artifact, error) {
	command := config.DefaultBuildCommand
	outDir := config.DefaultOutDir
	if cfg != nil {
		if cfg.Command != "" {
			command = cfg.Command
		}
		if cfg.OutDir != "" {
			outDir = cfg.OutDir
		}
	}

	console.Infof("Building: %s", command)
	err := runner.Run(ctx, executor.Command{
		Name: "sh",
		Args: []string{"-c", command},
		Dir:  projectDir,
		Env:  buildEnv(cfg),
	})
	if err != nil {
		return nil, util.WrapError(err, "build command failed")
	}

	artifacts, err := Collect(projectDir, outDir)
	if err != nil {
		return nil, err
	}
	for _, artifact := range artifacts {
		console.Infof("Built %s (%s, %s)", artifact.Filename, artifact.Kind, formatSize(artifact.Size))
	}

	if releaseVersion != "" && (cfg == nil || cfg.CheckVersion) {
		if err := verifyVersions(artifacts, releaseVersion); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}

// buildEnv is the scrubbed base environment plus the config's additions,
// in sorted order.
func buildEnv(cfg *config.Build) []string {
	env := executor.ScrubbedEnv()
	if cfg == nil || len(cfg.Env) == 0 {
		return env
	}
	names := make([]string, 0, len(cfg.Env))
	for name := range cfg.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env = append(env, name+"="+cfg.Env[name])
	}
	return env
}

// verifyVersions fails when any artifact's version differs from the
// released one: publishing 1.2.1 files from a v1.2.0 tag means the
// project forgot to bump its own version.
func verifyVersions(artifacts []*Artifact, releaseVersion string) error {
	var mismatched []string
	for _, artifact := range artifacts {
		if !versionsEqual(artifact.Version, releaseVersion) {
			mismatched = append(mismatched, fmt.Sprintf("%s is %s", artifact.Filename, artifact.Version))
		}
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("artifact versions do not match release %s: %s (set build.check_version: false to allow this)",
			releaseVersion, strings.Join(mismatched, ", "))
	}
	return nil
}

func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f kB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
