// Package oidc obtains the short-lived identity token that trusted
// publishing exchanges for an upload token. The hosting runner issues
// it on demand; no long-lived credential is ever read or stored.
package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slipway-ci/slipway/pkg/env"
	slipwayHTTP "github.com/slipway-ci/slipway/pkg/http"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// Token is an issued identity token. The claims are decoded without
// verification, for logging only; verifying the signature is the
// index's job.
type Token struct {
	Raw      string
	Subject  string
	Issuer   string
	Audience string
	Expiry   time.Time
}

// Issuer requests identity tokens from the hosting runner's issuance
// endpoint.
type Issuer struct {
	client     *http.Client
	requestURL string
}

// NewIssuer builds an Issuer from the environment. It fails when the
// host exposes no issuance endpoint, which is the one precondition of
// trusted publishing.
func NewIssuer() (*Issuer, error) {
	requestURL, requestToken := env.TokenRequestFromEnvironment()
	if requestURL == "" || requestToken == "" {
		return nil, fmt.Errorf("trusted publishing is not configured: the host must provide %s and %s",
			env.TokenRequestURLEnvVarName, env.TokenRequestTokenEnvVarName)
	}
	return NewIssuerWithEndpoint(requestURL, requestToken)
}

// NewIssuerWithEndpoint builds an Issuer against an explicit issuance
// endpoint. The request token authorizes slipway to the issuer and
// never travels to any other host.
func NewIssuerWithEndpoint(requestURL, requestToken string) (*Issuer, error) {
	u, err := url.Parse(requestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid token request URL: %w", err)
	}
	return &Issuer{
		client:     slipwayHTTP.NewAuthenticatedClient(u.Host, requestToken),
		requestURL: requestURL,
	}, nil
}

// Issue requests an identity token scoped to audience.
func (i *Issuer) Issue(ctx context.Context, audience string) (*Token, error) {
	u, err := url.Parse(i.requestURL)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("audience", audience)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request identity token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("identity token request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var issued struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		return nil, fmt.Errorf("failed to decode identity token response: %w", err)
	}
	if issued.Value == "" {
		return nil, fmt.Errorf("identity token response carried no token")
	}

	token := &Token{Raw: issued.Value}
	if err := token.decodeClaims(); err != nil {
		console.Debugf("identity token claims unreadable: %v", err)
	}
	return token, nil
}

// decodeClaims fills the logging fields from the JWT payload.
func (t *Token) decodeClaims() error {
	parts := strings.Split(t.Raw, ".")
	if len(parts) < 2 {
		return fmt.Errorf("token is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("cannot decode token payload: %w", err)
	}
	var claims struct {
		Subject  string      `json:"sub"`
		Issuer   string      `json:"iss"`
		Audience interface{} `json:"aud"`
		Expiry   int64       `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return fmt.Errorf("cannot decode token claims: %w", err)
	}
	t.Subject = claims.Subject
	t.Issuer = claims.Issuer
	switch aud := claims.Audience.(type) {
	case string:
		t.Audience = aud
	case []interface{}:
		if len(aud) > 0 {
			t.Audience, _ = aud[0].(string)
		}
	}
	if claims.Expiry > 0 {
		t.Expiry = time.Unix(claims.Expiry, 0)
	}
	return nil
}

// Describe renders the claims for the console.
func (t *Token) Describe() string {
	if t.Subject == "" {
		return "identity token issued"
	}
	if t.Expiry.IsZero() {
		return fmt.Sprintf("identity token issued for %s", t.Subject)
	}
	return fmt.Sprintf("identity token issued for %s, expires %s", t.Subject, console.FormatTime(t.Expiry))
}
