// Package settings holds per-user state that spans projects: upload
// tokens stored by `slipway login` for manual publishes. Pipeline runs
// never read these; they mint their own short-lived credentials.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/slipway-ci/slipway/pkg/util/console"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

// Settings are the global user settings.
type Settings struct {
	// Tokens maps an index upload URL to a stored upload token.
	Tokens map[string]string `json:"tokens,omitempty"`
}

// Dir returns the per-user slipway directory.
func Dir() (string, error) {
	return homedir.Expand("~/.config/slipway")
}

// Path returns where user settings live.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// Load reads user settings from disk, returning defaults when no file
// exists yet.
func Load() (*Settings, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return loadFrom(path)
}

func loadFrom(path string) (*Settings, error) {
	settings := &Settings{}

	exists, err := files.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return settings, nil
	}
	text, err := os.ReadFile(path)
	if err != nil {
		console.Warnf("Failed to read %s: %s", path, err)
		return settings, nil
	}
	if err := json.Unmarshal(text, settings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return settings, nil
}

// Save writes the settings to disk, readable only by the user.
func (s *Settings) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return s.saveTo(path)
}

func (s *Settings) saveTo(path string) error {
	text, err := json.MarshalIndent(s, "", " ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, text, 0o600)
}

// Token returns the stored upload token for an index, or "".
func (s *Settings) Token(indexURL string) string {
	return s.Tokens[normalizeIndexURL(indexURL)]
}

// SetToken stores an upload token for an index.
func (s *Settings) SetToken(indexURL, token string) {
	if s.Tokens == nil {
		s.Tokens = map[string]string{}
	}
	s.Tokens[normalizeIndexURL(indexURL)] = token
}

// DeleteToken forgets the stored token for an index.
func (s *Settings) DeleteToken(indexURL string) {
	delete(s.Tokens, normalizeIndexURL(indexURL))
}

// normalizeIndexURL makes the same index look the same with or without
// a trailing slash.
func normalizeIndexURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
