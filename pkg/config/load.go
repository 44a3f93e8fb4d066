package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/match"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

const maxSearchDepth = 100

// GetProjectDir returns the project's root directory: projectDirFlag when
// given, otherwise the nearest directory at or above the working directory
// that holds a slipway.yaml.
func GetProjectDir(projectDirFlag string) (string, error) {
	if projectDirFlag != "" {
		return filepath.Abs(projectDirFlag)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findProjectRootDir(cwd)
}

// GetConfig loads and validates slipway.yaml. projectDir overrides the
// default behavior of searching upward from the working directory.
func GetConfig(projectDir string) (*Config, string, error) {
	rootDir, err := GetProjectDir(projectDir)
	if err != nil {
		return nil, "", err
	}
	config, err := loadConfigFromFile(filepath.Join(rootDir, global.ConfigFilename))
	if err != nil {
		return nil, "", err
	}
	if err := config.ValidateAndComplete(rootDir); err != nil {
		return nil, "", err
	}
	return config, rootDir, nil
}

// GetRawConfig returns the config document as written, with string map
// keys but no defaults applied and no validation, for tools that inspect
// the raw file.
func GetRawConfig(projectDir string) (map[string]interface{}, string, error) {
	rootDir, err := GetProjectDir(projectDir)
	if err != nil {
		return nil, "", err
	}
	configPath := filepath.Join(rootDir, global.ConfigFilename)
	contents, err := os.ReadFile(configPath)
	if err != nil {
		return nil, "", err
	}
	var raw interface{}
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return nil, "", &ParseError{Filename: configPath, Err: err}
	}
	document, ok := match.Normalize(raw).(map[string]interface{})
	if !ok {
		return nil, "", &ParseError{Filename: configPath, Err: fmt.Errorf("top level must be a mapping")}
	}
	return document, rootDir, nil
}

// Given a file path, attempt to load a config from that file.
func loadConfigFromFile(file string) (*Config, error) {
	exists, err := files.Exists(file)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s does not exist in %s. Are you in the right directory?", filepath.Base(file), filepath.Dir(file))
	}
	contents, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return FromYAML(contents)
}

// Walk up the directory tree to find the root of the project.
// The project root is defined as the directory housing a slipway.yaml file.
func findProjectRootDir(startDir string) (string, error) {
	dir := startDir
	for i := 0; i < maxSearchDepth; i++ {
		exists, err := files.Exists(filepath.Join(dir, global.ConfigFilename))
		if err != nil {
			return "", fmt.Errorf("failed to scan directory %s: %w", dir, err)
		}
		if exists {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found in %s (or in any parent directories)", global.ConfigFilename, startDir)
		}
		dir = parent
	}
	return "", fmt.Errorf("no %s found in parent directories", global.ConfigFilename)
}
