package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"
)

// ErrDuplicate reports that the index already has this exact file.
// Release reruns hit it routinely; skip_existing turns it into success.
var ErrDuplicate = errors.New("file already exists on the index")

// Upload describes one artifact upload over the legacy API.
type Upload struct {
	// Path is the file on disk.
	Path string
	// Body, when set, is read instead of opening Path. Callers use it to
	// wrap the file in a progress reader.
	Body io.Reader
	// Filename is the name the index stores.
	Filename string
	// Name and Version identify the release.
	Name    string
	Version string
	// Filetype is sdist or bdist_wheel.
	Filetype string
	// PyVersion is source for sdists, the wheel's python tag otherwise.
	PyVersion string
	// SHA256 is the hex content digest the index verifies against.
	SHA256 string
}

// Upload sends one artifact. The upload token authorizes exactly this:
// basic auth with the reserved token username.
func (c *Client) Upload(ctx context.Context, token string, up Upload) error {
	content := up.Body
	if content == nil {
		file, err := os.Open(up.Path)
		if err != nil {
			return err
		}
		defer file.Close()
		content = file
	}

	bodyReader, bodyWriter := io.Pipe()
	writer := multipart.NewWriter(bodyWriter)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(TokenUsername, token)

	go func() {
		bodyWriter.CloseWithError(writeUploadForm(writer, up, content))
	}()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload of %s failed: %w", up.Filename, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case isDuplicateResponse(resp.StatusCode, readSnippet(resp.Body)):
		return ErrDuplicate
	default:
		return fmt.Errorf("upload of %s failed: %s: %s", up.Filename, resp.Status, readSnippet(resp.Body))
	}
}

// writeUploadForm writes the twine-compatible form: the metadata fields
// first, then the file content part.
func writeUploadForm(writer *multipart.Writer, up Upload, file io.Reader) error {
	fields := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"metadata_version": "2.1",
		"name":             up.Name,
		"version":          up.Version,
		"filetype":         up.Filetype,
		"pyversion":        up.PyVersion,
		"sha256_digest":    up.SHA256,
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writer.WriteField(name, fields[name]); err != nil {
			return err
		}
	}

	part, err := writer.CreateFormFile("content", up.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return writer.Close()
}

// isDuplicateResponse recognizes the index's already-uploaded answers:
// a conflict status, or the bad-request text some indexes use instead.
func isDuplicateResponse(status int, body string) bool {
	if status == http.StatusConflict {
		return true
	}
	if status == http.StatusBadRequest {
		lower := strings.ToLower(body)
		return strings.Contains(lower, "already exists") ||
			strings.Contains(lower, "already been taken") ||
			strings.Contains(lower, "duplicate")
	}
	return false
}
