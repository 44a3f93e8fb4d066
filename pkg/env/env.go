package env

import "os"

const (
	IndexURLEnvVarName  = "SLIPWAY_INDEX_URL"
	SimpleURLEnvVarName = "SLIPWAY_SIMPLE_URL"
	AudienceEnvVarName  = "SLIPWAY_AUDIENCE"

	// Trusted publishing: the hosting runner exposes an identity-token
	// issuance endpoint through these two variables. The ACTIONS_* pair is
	// accepted as a fallback so hosted runners work unconfigured.
	TokenRequestURLEnvVarName      = "SLIPWAY_ID_TOKEN_REQUEST_URL"
	TokenRequestTokenEnvVarName    = "SLIPWAY_ID_TOKEN_REQUEST_TOKEN"
	FallbackRequestURLEnvVarName   = "ACTIONS_ID_TOKEN_REQUEST_URL"
	FallbackRequestTokenEnvVarName = "ACTIONS_ID_TOKEN_REQUEST_TOKEN"

	WebhookSecretEnvVarName = "SLIPWAY_WEBHOOK_SECRET"
	NoUpdateCheckEnvVarName = "SLIPWAY_NO_UPDATE_CHECK"
)

// IndexURLFromEnvironment returns the configured upload endpoint override,
// or the empty string when unset.
func IndexURLFromEnvironment() string {
	return os.Getenv(IndexURLEnvVarName)
}

// SimpleURLFromEnvironment returns the configured simple API root override,
// or the empty string when unset.
func SimpleURLFromEnvironment() string {
	return os.Getenv(SimpleURLEnvVarName)
}

// AudienceFromEnvironment returns the OIDC audience override, or the empty
// string when unset.
func AudienceFromEnvironment() string {
	return os.Getenv(AudienceEnvVarName)
}

// TokenRequestFromEnvironment returns the identity-token issuance endpoint
// and its bearer token, preferring the SLIPWAY_* pair over the ACTIONS_*
// fallback. Both strings are empty when no issuer is configured.
func TokenRequestFromEnvironment() (url string, token string) {
	url = os.Getenv(TokenRequestURLEnvVarName)
	token = os.Getenv(TokenRequestTokenEnvVarName)
	if url != "" && token != "" {
		return url, token
	}
	return os.Getenv(FallbackRequestURLEnvVarName), os.Getenv(FallbackRequestTokenEnvVarName)
}
