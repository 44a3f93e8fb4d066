package runtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

// normalizeConstraint turns a metadata declaration into constraint syntax.
// Bare versions pin a release series ("3.12" accepts any 3.12 patch,
// "3.12.4" exactly that patch); requires-python sets pass through with the
// ~= and trailing-wildcard forms rewritten to their equivalents.
func normalizeConstraint(declared string) (version.Constraints, error) {
	var specs []string
	for _, part := range strings.Split(declared, ",") {
		spec := strings.TrimSpace(part)
		if spec == "" {
			continue
		}
		switch {
		case strings.HasPrefix(spec, "~="):
			spec = "~>" + strings.TrimPrefix(spec, "~=")
		case strings.HasSuffix(spec, ".*"):
			base := strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(spec, ".*"), "=="))
			spec = "~> " + base + ".0"
		case !strings.ContainsAny(spec, "<>=!~"):
			if _, err := version.NewVersion(spec); err != nil {
				return nil, fmt.Errorf("cannot parse declared runtime version %q: %w", declared, err)
			}
			if strings.Count(spec, ".") >= 2 {
				spec = "= " + spec
			} else {
				spec = "~> " + spec + ".0"
			}
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("empty runtime version declaration")
	}
	constraints, err := version.NewConstraint(strings.Join(specs, ","))
	if err != nil {
		return nil, fmt.Errorf("cannot parse declared runtime version %q: %w", declared, err)
	}
	return constraints, nil
}

// Resolve picks the newest available version satisfying the declaration.
func Resolve(declared string, available []string) (string, error) {
	constraints, err := normalizeConstraint(declared)
	if err != nil {
		return "", err
	}
	var candidates []*version.Version
	for _, raw := range available {
		v, err := version.NewVersion(raw)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if constraints.Check(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no available runtime satisfies %q (%d versions offered)", declared, len(available))
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Compare(candidates[j]) > 0
	})
	return candidates[0].Original(), nil
}

// parseInstallerList extracts interpreter versions from `uv python list`
// output. Lines look like
//
//	cpython-3.12.8-linux-x86_64-gnu    /usr/bin/python3.12
//	cpython-3.13.1-linux-x86_64-gnu    <download available>
func parseInstallerList(out []byte) []string {
	var versions []string
	seen := map[string]bool{}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		parts := strings.SplitN(fields[0], "-", 3)
		if len(parts) < 2 || parts[0] != "cpython" {
			continue
		}
		if !seen[parts[1]] {
			seen[parts[1]] = true
			versions = append(versions, parts[1])
		}
	}
	return versions
}
