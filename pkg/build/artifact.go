package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/slipway-ci/slipway/pkg/util"
)

const (
	KindSdist = "sdist"
	KindWheel = "wheel"
)

// Artifact is one distributable file the build produced.
type Artifact struct {
	// Path is the file on disk; Filename its base name.
	Path     string
	Filename string
	// Name and Version are parsed from the filename.
	Name    string
	Version string
	// Kind is sdist or wheel.
	Kind string
	// PyVersion is the wheel's python tag, or source for sdists.
	PyVersion string
	Size      int64
	SHA256    string
}

// Filetype returns the upload API's name for the artifact kind.
func (a *Artifact) Filetype() string {
	if a.Kind == KindWheel {
		return "bdist_wheel"
	}
	return "sdist"
}

// Collect gathers the artifacts the build wrote into the output
// directory. A build that produced nothing is a failed build.
func Collect(projectDir, outDir string) ([]*Artifact, error) {
	outPath := filepath.Join(projectDir, outDir)
	entries, err := os.ReadDir(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("build produced no output directory %s", outDir)
		}
		return nil, err
	}

	var artifacts []*Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ver, kind, pyVersion, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(outPath, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		digest, err := util.SHA256HashFile(path)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &Artifact{
			Path:      path,
			Filename:  entry.Name(),
			Name:      name,
			Version:   ver,
			Kind:      kind,
			PyVersion: pyVersion,
			Size:      info.Size(),
			SHA256:    digest,
		})
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("build produced no artifacts in %s (expected *.whl or *.tar.gz)", outDir)
	}
	return artifacts, nil
}

// parseFilename splits a distribution filename. Wheels are
// name-version-pytag-abitag-platform.whl with optional build tag; sdists
// are name-version.tar.gz.
func parseFilename(filename string) (name, ver, kind, pyVersion string, ok bool) {
	switch {
	case strings.HasSuffix(filename, ".whl"):
		parts := strings.Split(strings.TrimSuffix(filename, ".whl"), "-")
		if len(parts) < 5 {
			return "", "", "", "", false
		}
		return parts[0], parts[1], KindWheel, parts[len(parts)-3], true
	case strings.HasSuffix(filename, ".tar.gz"):
		stem := strings.TrimSuffix(filename, ".tar.gz")
		i := strings.LastIndex(stem, "-")
		if i <= 0 || i == len(stem)-1 {
			return "", "", "", "", false
		}
		return stem[:i], stem[i+1:], KindSdist, "source", true
	}
	return "", "", "", "", false
}

// versionsEqual compares release and artifact versions, tolerating
// formatting differences like 1.2 against 1.2.0.
func versionsEqual(a, b string) bool {
	if a == b {
		return true
	}
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	if errA != nil || errB != nil {
		return false
	}
	return va.Equal(vb)
}
