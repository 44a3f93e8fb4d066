package index

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/anaskhan96/soup"
)

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName folds a project name the way the simple API does:
// runs of separators become a single dash and case is ignored.
func NormalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

// ProjectVersions lists the released versions of a project from its
// simple API page, in page order with duplicates removed.
func (c *Client) ProjectVersions(ctx context.Context, project string) ([]string, error) {
	pageURL := strings.TrimSuffix(c.SimpleURL, "/") + "/" + NormalizeName(project) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("project %s not found on the index", project)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %s", pageURL, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	doc := soup.HTMLParse(string(body))
	var versions []string
	seen := map[string]bool{}
	for _, link := range doc.FindAll("a") {
		version := versionFromFilename(strings.TrimSpace(link.Text()), project)
		if version == "" || seen[version] {
			continue
		}
		seen[version] = true
		versions = append(versions, version)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no releases of %s on the index", project)
	}
	return versions, nil
}

// versionFromFilename extracts the version from a distribution filename:
// the second dash-separated field of a wheel, the part after the last
// dash of an sdist.
func versionFromFilename(filename, project string) string {
	normalized := NormalizeName(project)
	switch {
	case strings.HasSuffix(filename, ".whl"):
		parts := strings.Split(strings.TrimSuffix(filename, ".whl"), "-")
		if len(parts) >= 2 && NormalizeName(parts[0]) == normalized {
			return parts[1]
		}
	case strings.HasSuffix(filename, ".tar.gz"):
		stem := strings.TrimSuffix(filename, ".tar.gz")
		i := strings.LastIndex(stem, "-")
		if i > 0 && NormalizeName(stem[:i]) == normalized {
			return stem[i+1:]
		}
	}
	return ""
}
