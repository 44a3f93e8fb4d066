package http

import (
	"errors"
	"net/http"
)

const (
	AuthorizationHeader = "Authorization"
	UserAgentHeader     = "User-Agent"
	BearerHeaderPrefix  = "Bearer "
)

// Transport injects standing headers and per-host authorization into
// every request that does not already carry them.
type Transport struct {
	headers        map[string]string
	authentication map[string]string
	base           http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Write standard headers
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	// Write authentication
	if req.Header.Get(AuthorizationHeader) == "" {
		authorization, ok := t.authentication[req.URL.Host]
		if ok {
			if authorization == BearerHeaderPrefix {
				return nil, errors.New("no token supplied for HTTP authorization")
			}
			req.Header.Set(AuthorizationHeader, authorization)
		}
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
