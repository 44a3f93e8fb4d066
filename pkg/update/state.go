package update

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/slipway-ci/slipway/pkg/util/console"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

type state struct {
	Message     string    `json:"message"`
	LastChecked time.Time `json:"lastChecked"`
	Version     string    `json:"version"`
}

// loadState loads the update check state from disk, returning defaults if it
// does not exist yet.
func loadState() (*state, error) {
	p, err := statePath()
	if err != nil {
		return nil, err
	}
	return loadStateFrom(p)
}

func loadStateFrom(path string) (*state, error) {
	s := state{}

	exists, err := files.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &s, nil
	}
	text, err := os.ReadFile(path)
	if err != nil {
		console.Debugf("Failed to read %s: %s", path, err)
		return &s, nil
	}
	if err := json.Unmarshal(text, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &s, nil
}

// writeState saves the update check state to disk.
func writeState(s *state) error {
	p, err := statePath()
	if err != nil {
		return err
	}
	return writeStateTo(p, s)
}

func writeStateTo(path string, s *state) error {
	text, err := json.MarshalIndent(s, "", " ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, text, 0o600)
}

func userDir() (string, error) {
	return homedir.Expand("~/.config/slipway")
}

func statePath() (string, error) {
	dir, err := userDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "update-state.json"), nil
}
