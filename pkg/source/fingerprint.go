package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/util"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

// defaultIgnore is always excluded from fingerprints, whatever the
// project's ignore files say.
var defaultIgnore = []string{
	".git",
	"__pycache__",
	"*.pyc",
	".venv",
	"venv",
}

// Fingerprint hashes the source tree: a SHA-256 over the sorted manifest
// of path and content digests, honoring .gitignore and .slipwayignore.
// Two checkouts with identical content get identical fingerprints, so a
// recorded run can be tied to exactly what was built.
func Fingerprint(dir string) (string, error) {
	matcher, err := loadIgnoreMatcher(dir)
	if err != nil {
		return "", err
	}

	var manifest []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.MatchesPath(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		digest, err := util.SHA256HashFile(path)
		if err != nil {
			return err
		}
		manifest = append(manifest, filepath.ToSlash(rel)+"\x00"+digest)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", dir, err)
	}

	sort.Strings(manifest)
	h := sha256.New()
	for _, entry := range manifest {
		h.Write([]byte(entry))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadIgnoreMatcher(dir string) (*ignore.GitIgnore, error) {
	lines := append([]string{}, defaultIgnore...)
	for _, filename := range []string{".gitignore", config.DefaultIgnoreFilename} {
		path := filepath.Join(dir, filename)
		exists, err := files.Exists(path)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.Split(strings.ReplaceAll(string(contents), "\r\n", "\n"), "\n")...)
	}
	return ignore.CompileIgnoreLines(lines...), nil
}
