// Package doctor runs preflight checks over everything a pipeline run
// depends on: executables on PATH, disk headroom for the checkout and
// build output, index reachability, trusted-publishing credentials, and
// the project's slipway.yaml.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/env"
	"github.com/slipway-ci/slipway/pkg/index"
	"github.com/slipway-ci/slipway/pkg/lint"
	"github.com/slipway-ci/slipway/pkg/util/console"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

// minDiskSpace is how much headroom a checkout plus a build is assumed
// to need.
const minDiskSpace = uint64(1 << 30)

// Check is one preflight probe. Run returns nil when the environment
// passes and a descriptive error when it does not.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Checks assembles the preflight list for a project. A config that does
// not load is itself a finding, so the remaining checks run against
// defaults instead of aborting the whole examination.
func Checks(projectDir string) []Check {
	cfg, rootDir, cfgErr := config.GetConfig(projectDir)
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if rootDir == "" {
		rootDir = "."
	}

	checks := []Check{
		{Name: "project config", Run: func(context.Context) error { return cfgErr }},
		{Name: "config lint", Run: lintProject(projectDir)},
		{Name: "git executable", Run: onPath("git")},
		{Name: cfg.Runtime.Installer + " executable", Run: onPath(cfg.Runtime.Installer)},
		{Name: "disk space", Run: diskSpace(rootDir)},
		{Name: "package index", Run: indexReachable(cfg.Publish)},
		{Name: "trusted publishing", Run: identityIssuerConfigured},
	}
	return checks
}

// RunAll executes every check in order, reporting each result, and
// returns the number of failures. A failing check never stops the rest;
// doctor's job is the complete picture.
func RunAll(ctx context.Context, checks []Check) int {
	failed := 0
	for _, check := range checks {
		if err := check.Run(ctx); err != nil {
			console.Errorf("FAIL  %s: %s", check.Name, err)
			failed++
			continue
		}
		console.Infof("ok    %s", check.Name)
	}
	return failed
}

func onPath(name string) func(context.Context) error {
	return func(context.Context) error {
		path, err := exec.LookPath(name)
		if err != nil {
			return fmt.Errorf("%s not found on PATH", name)
		}
		if !files.IsExecutable(path) {
			return fmt.Errorf("%s is not executable", path)
		}
		return nil
	}
}

func diskSpace(dir string) func(context.Context) error {
	return func(context.Context) error {
		var fs unix.Statfs_t
		if err := unix.Statfs(dir, &fs); err != nil {
			return fmt.Errorf("failed to stat filesystem at %s: %w", dir, err)
		}
		free := fs.Bavail * uint64(fs.Bsize)
		if free < minDiskSpace {
			return fmt.Errorf("only %d MiB free at %s, builds need at least %d MiB", free>>20, dir, minDiskSpace>>20)
		}
		return nil
	}
}

func indexReachable(cfg *config.Publish) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := index.NewClient(cfg)
		if err != nil {
			return err
		}
		return client.Ping(ctx)
	}
}

func identityIssuerConfigured(context.Context) error {
	url, token := env.TokenRequestFromEnvironment()
	if url == "" || token == "" {
		return fmt.Errorf("no identity token issuer configured, set %s and %s",
			env.TokenRequestURLEnvVarName, env.TokenRequestTokenEnvVarName)
	}
	return nil
}

func lintProject(projectDir string) func(context.Context) error {
	return func(context.Context) error {
		report, _, err := lint.CheckProject(projectDir)
		if err != nil {
			return err
		}
		if report.HasErrors() {
			return fmt.Errorf("lint reports errors: %s", strings.Join(report.Rules(), ", "))
		}
		return nil
	}
}
