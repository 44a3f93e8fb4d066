package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

// Declaration is the runtime version requirement the project states in
// its metadata. The config file never carries the version itself, so a
// release always builds with whatever the tagged source declares.
type Declaration struct {
	// Constraint as written: an exact version ("3.12.4"), a release
	// series ("3.12") or a requires-python constraint set (">=3.11,<3.13").
	Constraint string
	// Source is the metadata file the declaration came from, relative to
	// the project root.
	Source string
}

type pyproject struct {
	Project struct {
		Name           string `toml:"name"`
		Version        string `toml:"version"`
		RequiresPython string `toml:"requires-python"`
	} `toml:"project"`
}

// ReadDeclaration finds the version declaration, in precedence order: the
// version file named in config, then .python-version, then
// project.requires-python in pyproject.toml.
func ReadDeclaration(projectDir string, cfg *config.Runtime) (*Declaration, error) {
	if cfg != nil && cfg.VersionFile != "" {
		constraint, err := readVersionFile(filepath.Join(projectDir, cfg.VersionFile))
		if err != nil {
			return nil, err
		}
		return &Declaration{Constraint: constraint, Source: cfg.VersionFile}, nil
	}

	versionFile := filepath.Join(projectDir, config.DefaultVersionFile)
	exists, err := files.Exists(versionFile)
	if err != nil {
		return nil, err
	}
	if exists {
		constraint, err := readVersionFile(versionFile)
		if err != nil {
			return nil, err
		}
		return &Declaration{Constraint: constraint, Source: config.DefaultVersionFile}, nil
	}

	metadataFile := filepath.Join(projectDir, config.FallbackMetadataFile)
	exists, err = files.Exists(metadataFile)
	if err != nil {
		return nil, err
	}
	if exists {
		constraint, err := readRequiresPython(metadataFile)
		if err != nil {
			return nil, err
		}
		if constraint != "" {
			return &Declaration{Constraint: constraint, Source: config.FallbackMetadataFile}, nil
		}
	}

	return nil, fmt.Errorf("no runtime version declared: add %s or set project.requires-python in %s",
		config.DefaultVersionFile, config.FallbackMetadataFile)
}

// readVersionFile returns the first meaningful line of a version file.
func readVersionFile(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read version file: %w", err)
	}
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", fmt.Errorf("%s declares no version", filepath.Base(path))
}

func readRequiresPython(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var meta pyproject
	if err := toml.Unmarshal(contents, &meta); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(meta.Project.RequiresPython), nil
}
