// Package index talks to the package index: exchanging an identity token
// for a scoped upload token, uploading artifacts over the legacy upload
// API, and reading released versions from the simple API.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/env"
	slipwayHTTP "github.com/slipway-ci/slipway/pkg/http"
)

// TokenUsername is the reserved username for token authentication on
// the upload API.
const TokenUsername = "__token__"

// mintTokenPath is where the index exchanges identity tokens for upload
// tokens, relative to the simple API origin.
const mintTokenPath = "/_/oidc/mint-token"

// Client is a package index client. URLs are fixed at construction;
// credentials are per call because every run mints its own.
type Client struct {
	// UploadURL is the legacy upload endpoint.
	UploadURL string
	// SimpleURL is the PEP 503 simple API root.
	SimpleURL string
	// MintURL is the token exchange endpoint.
	MintURL string

	client *http.Client
}

// NewClient builds a client for the configured index. Environment
// overrides take precedence over the file so one release can be
// rehearsed against a staging index without editing the project.
func NewClient(cfg *config.Publish) (*Client, error) {
	uploadURL := cfg.IndexURL
	if fromEnv := env.IndexURLFromEnvironment(); fromEnv != "" {
		uploadURL = fromEnv
	}
	simpleURL := cfg.SimpleURL
	if fromEnv := env.SimpleURLFromEnvironment(); fromEnv != "" {
		simpleURL = fromEnv
	}

	origin, err := url.Parse(simpleURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid simple API URL %q", simpleURL)
	}

	return &Client{
		UploadURL: uploadURL,
		SimpleURL: simpleURL,
		MintURL:   origin.Scheme + "://" + origin.Host + mintTokenPath,
		client:    slipwayHTTP.NewClient(),
	}, nil
}

// MintToken exchanges an identity token for a short-lived upload token.
func (c *Client) MintToken(ctx context.Context, identity string) (string, error) {
	body, err := json.Marshal(map[string]string{"token": identity})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MintURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("token exchange failed: %s: %s", resp.Status, readSnippet(resp.Body))
	}

	var minted struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return "", fmt.Errorf("failed to decode token exchange response: %w", err)
	}
	if minted.Token == "" {
		return "", fmt.Errorf("token exchange response carried no token")
	}
	return minted.Token, nil
}

// Ping confirms the simple API answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SimpleURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("index unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("index unhealthy: %s", resp.Status)
	}
	return nil
}

// readSnippet returns the head of a response body for error messages.
func readSnippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(body))
}
