// Package http builds the HTTP clients the pipeline talks to the forge
// and the package index with. Every client identifies itself; bearer
// credentials are scoped to a single host so a token never travels to
// anyone but its issuer.
package http

import (
	"net/http"
)

// NewClient returns a client that sets the User-Agent on every request.
func NewClient() *http.Client {
	return &http.Client{
		Transport: &Transport{
			headers: map[string]string{
				UserAgentHeader: UserAgent(),
			},
		},
	}
}

// NewAuthenticatedClient returns a client that bearer-authorizes
// requests to host and identifies itself everywhere.
func NewAuthenticatedClient(host, token string) *http.Client {
	return &http.Client{
		Transport: &Transport{
			headers: map[string]string{
				UserAgentHeader: UserAgent(),
			},
			authentication: map[string]string{
				host: BearerHeaderPrefix + token,
			},
		},
	}
}
