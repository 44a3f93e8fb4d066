// Package source acquires the repository at the released revision and
// fingerprints what was built.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/util"
)

// Checkout clones the repository at the released tag into dest and
// returns the revision the checkout resolved to.
func Checkout(ctx context.Context, runner executor.Runner, cloneURL, tag, dest string) (string, error) {
	err := runner.Run(ctx, executor.Command{
		Name: "git",
		Args: []string{
			"clone",
			"--depth", "1",
			"--branch", tag,
			"--config", "advice.detachedHead=false",
			cloneURL,
			dest,
		},
	})
	if err != nil {
		return "", util.WrapError(err, fmt.Sprintf("failed to clone %s at %s", cloneURL, tag))
	}
	return Revision(ctx, runner, dest)
}

// Revision resolves the commit a checkout currently points at.
func Revision(ctx context.Context, runner executor.Runner, dir string) (string, error) {
	out, err := runner.Output(ctx, executor.Command{
		Name: "git",
		Args: []string{"rev-parse", "HEAD"},
		Dir:  dir,
	})
	if err != nil {
		return "", util.WrapError(err, "failed to resolve checkout revision")
	}
	revision := strings.TrimSpace(string(out))
	if revision == "" {
		return "", fmt.Errorf("git rev-parse returned no revision")
	}
	return revision, nil
}

// VerifyRevision fails when the checked-out revision differs from the
// revision the release event declared. An empty declared revision skips
// the check; events that carry branch names instead of commits cannot be
// verified this way.
func VerifyRevision(got, declared string) error {
	if declared == "" {
		return nil
	}
	if !strings.EqualFold(got, declared) {
		return fmt.Errorf("checkout revision %s does not match declared release revision %s", shortRevision(got), shortRevision(declared))
	}
	return nil
}

func shortRevision(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}
