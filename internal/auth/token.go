package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenLifetime is assumed when the server omits expires_in and the
// access token carries no exp claim.
const defaultTokenLifetime = 10 * time.Minute

// TokenSet is one complete OAuth2 grant. Refresh tokens rotate: every
// refresh yields a new one and invalidates the old, so the set must be
// persisted as soon as it is received.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ClientID     string
	Scope        string
	ExpiresAt    time.Time
}

// ExpiresWithin reports whether the access token expires inside the given
// window from now.
func (t *TokenSet) ExpiresWithin(window time.Duration) bool {
	return time.Now().Add(window).After(t.ExpiresAt)
}

// Credentials is an in-flight device authorization. UserCode and
// VerificationURI are shown to the user; DeviceCode drives polling.
type Credentials struct {
	ClientID                string
	Scope                   string
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	Interval                time.Duration
	ExpiresAt               time.Time
}

// deviceAuthResponse is the wire shape of a device_authorize success.
type deviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// tokenResponse is the wire shape of a token endpoint success.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// oauthError is the wire shape of a token endpoint failure.
type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// tokenExpiry determines when an access token expires. expires_in wins;
// otherwise the JWT exp claim is read without signature verification
// (the value only schedules our refresh, it grants nothing).
func tokenExpiry(accessToken string, expiresIn int) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}

	parser := jwt.NewParser()
	if tok, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{}); err == nil {
		if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return time.Now().Add(defaultTokenLifetime)
}

// newTokenSet builds a TokenSet from a token endpoint response. Scope falls
// back to the requested scope when the server omits it.
func newTokenSet(clientID, requestedScope string, resp *tokenResponse) *TokenSet {
	scope := resp.Scope
	if scope == "" {
		scope = requestedScope
	}
	return &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ClientID:     clientID,
		Scope:        scope,
		ExpiresAt:    tokenExpiry(resp.AccessToken, resp.ExpiresIn),
	}
}
