package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/env"
	slipwayHTTP "github.com/slipway-ci/slipway/pkg/http"
)

func testClient(server *httptest.Server) *Client {
	return &Client{
		UploadURL: server.URL + "/legacy/",
		SimpleURL: server.URL + "/simple/",
		MintURL:   server.URL + "/_/oidc/mint-token",
		client:    slipwayHTTP.NewClient(),
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(&config.Publish{
		IndexURL:  "https://upload.index.example/legacy/",
		SimpleURL: "https://index.example/simple/",
	})
	require.NoError(t, err)
	require.Equal(t, "https://upload.index.example/legacy/", client.UploadURL)
	require.Equal(t, "https://index.example/_/oidc/mint-token", client.MintURL)

	t.Setenv(env.IndexURLEnvVarName, "https://staging.example/legacy/")
	t.Setenv(env.SimpleURLEnvVarName, "https://staging.example/simple/")
	client, err = NewClient(&config.Publish{
		IndexURL:  "https://upload.index.example/legacy/",
		SimpleURL: "https://index.example/simple/",
	})
	require.NoError(t, err)
	require.Equal(t, "https://staging.example/legacy/", client.UploadURL)
	require.Equal(t, "https://staging.example/_/oidc/mint-token", client.MintURL)
}

func TestNewClientRejectsBadSimpleURL(t *testing.T) {
	_, err := NewClient(&config.Publish{IndexURL: "https://x.example/", SimpleURL: "not-a-url"})
	require.Error(t, err)
}

func TestMintToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/_/oidc/mint-token", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "identity-jwt", body.Token)

		fmt.Fprint(w, `{"token": "pypi-ephemeral-upload-token", "expires": 900}`)
	}))
	defer server.Close()

	token, err := testClient(server).MintToken(context.Background(), "identity-jwt")
	require.NoError(t, err)
	require.Equal(t, "pypi-ephemeral-upload-token", token)
}

func TestMintTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "invalid publisher"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server).MintToken(context.Background(), "identity-jwt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
	require.Contains(t, err.Error(), "invalid publisher")
}

func testUpload(t *testing.T, dir string) Upload {
	t.Helper()
	path := filepath.Join(dir, "widget-1.2.0-py3-none-any.whl")
	require.NoError(t, os.WriteFile(path, []byte("wheel bytes"), 0o644))
	return Upload{
		Path:      path,
		Filename:  "widget-1.2.0-py3-none-any.whl",
		Name:      "widget",
		Version:   "1.2.0",
		Filetype:  "bdist_wheel",
		PyVersion: "py3",
		SHA256:    "0f343b0931126a20f133d67c2b018a3b5b22ea0b0b0e4a0b0ce0b0d0a0f0e0d0",
	}
}

func TestUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/legacy/", r.URL.Path)
		user, token, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, TokenUsername, user)
		require.Equal(t, "pypi-ephemeral-upload-token", token)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "file_upload", r.FormValue(":action"))
		require.Equal(t, "1", r.FormValue("protocol_version"))
		require.Equal(t, "2.1", r.FormValue("metadata_version"))
		require.Equal(t, "widget", r.FormValue("name"))
		require.Equal(t, "1.2.0", r.FormValue("version"))
		require.Equal(t, "bdist_wheel", r.FormValue("filetype"))
		require.Equal(t, "py3", r.FormValue("pyversion"))
		require.NotEmpty(t, r.FormValue("sha256_digest"))

		file, header, err := r.FormFile("content")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "widget-1.2.0-py3-none-any.whl", header.Filename)
		contents, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "wheel bytes", string(contents))

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := testClient(server).Upload(context.Background(), "pypi-ephemeral-upload-token", testUpload(t, t.TempDir()))
	require.NoError(t, err)
}

func TestUploadDuplicate(t *testing.T) {
	for _, response := range []struct {
		status int
		body   string
	}{
		{http.StatusConflict, ""},
		{http.StatusBadRequest, "File already exists. See /help/ for more information."},
		{http.StatusBadRequest, "filename has already been taken"},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, response.body, response.status)
		}))
		err := testClient(server).Upload(context.Background(), "token", testUpload(t, t.TempDir()))
		server.Close()
		require.ErrorIs(t, err, ErrDuplicate, "status %d body %q", response.status, response.body)
	}
}

func TestUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid or non-existent authentication information", http.StatusForbidden)
	}))
	defer server.Close()

	err := testClient(server).Upload(context.Background(), "token", testUpload(t, t.TempDir()))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDuplicate)
	require.Contains(t, err.Error(), "403")
}

func TestUploadMissingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should never be sent")
	}))
	defer server.Close()

	up := testUpload(t, t.TempDir())
	up.Path = filepath.Join(t.TempDir(), "gone.whl")
	err := testClient(server).Upload(context.Background(), "token", up)
	require.Error(t, err)
}

const simplePage = `<!DOCTYPE html>
<html><body>
<a href="/packages/my_build-1.0.0.tar.gz#sha256=aa">my_build-1.0.0.tar.gz</a>
<a href="/packages/my_build-1.0.0-py3-none-any.whl#sha256=bb">my_build-1.0.0-py3-none-any.whl</a>
<a href="/packages/my_build-1.1.0-py3-none-any.whl#sha256=cc">my_build-1.1.0-py3-none-any.whl</a>
<a href="/packages/other-9.9.9.tar.gz#sha256=dd">other-9.9.9.tar.gz</a>
</body></html>`

func TestProjectVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/my-build/", r.URL.Path)
		fmt.Fprint(w, simplePage)
	}))
	defer server.Close()

	versions, err := testClient(server).ProjectVersions(context.Background(), "My.Build")
	require.NoError(t, err)
	require.Equal(t, []string{"1.0.0", "1.1.0"}, versions)
}

func TestProjectVersionsNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := testClient(server).ProjectVersions(context.Background(), "widget")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestProjectVersionsEmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><h1>nothing here</h1></body></html>")
	}))
	defer server.Close()

	_, err := testClient(server).ProjectVersions(context.Background(), "widget")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no releases")
}

func TestNormalizeName(t *testing.T) {
	for name, want := range map[string]string{
		"Build":         "build",
		"my.package":    "my-package",
		"My__Pkg":       "my-pkg",
		"friendly.bard": "friendly-bard",
		"a-b_c.d":       "a-b-c-d",
	} {
		require.Equal(t, want, NormalizeName(name))
	}
}

func TestPing(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	require.NoError(t, testClient(healthy).Ping(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()
	require.Error(t, testClient(unhealthy).Ping(context.Background()))
}
