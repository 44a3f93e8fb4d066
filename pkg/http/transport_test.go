package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransportAddsHeaders(t *testing.T) {
	// Setup mock http server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	const testHeader = "X-Test-Header"
	const testValue = "TestValue"
	transport := Transport{
		headers: map[string]string{
			testHeader: testValue,
		},
	}
	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, resp.Request.Header.Get(testHeader), testValue)
}

func TestTransportAuthorizesConfiguredHostOnly(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(AuthorizationHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)

	transport := Transport{
		authentication: map[string]string{
			serverURL.Host: BearerHeaderPrefix + "s3cret",
		},
	}

	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)
	_, err = transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "Bearer s3cret", got)

	// A different host gets nothing.
	other := Transport{
		authentication: map[string]string{
			"index.example:443": BearerHeaderPrefix + "s3cret",
		},
	}
	req, err = http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)
	_, err = other.RoundTrip(req)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTransportKeepsExistingAuthorization(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(AuthorizationHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)

	transport := Transport{
		authentication: map[string]string{
			serverURL.Host: BearerHeaderPrefix + "transport-token",
		},
	}
	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)
	req.Header.Set(AuthorizationHeader, "Basic cGVy")
	_, err = transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "Basic cGVy", got)
}

func TestTransportRejectsEmptyToken(t *testing.T) {
	transport := Transport{
		authentication: map[string]string{
			"index.example": BearerHeaderPrefix,
		},
	}
	req, err := http.NewRequest("GET", "https://index.example/project/", nil)
	require.NoError(t, err)
	_, err = transport.RoundTrip(req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no token supplied")
}

func TestUserAgent(t *testing.T) {
	require.True(t, strings.HasPrefix(UserAgent(), "Slipway/"))
}
