package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
)

// ClientProfile is one OAuth client identity to attempt during device
// authorization. Profiles are tried in order; the first one the login
// service accepts wins, and its identity is used for all later refreshes.
type ClientProfile struct {
	ID    string
	Scope string
}

// Config carries the Session's tunables.
type Config struct {
	OAuthBaseURL  string
	Profiles      []ClientProfile
	RefreshBuffer time.Duration
	HTTPTimeout   time.Duration
}

// Session manages the token lifecycle. It satisfies the transport layer's
// TokenSource: Token returns a live access token, refreshing ahead of
// expiry, and Invalidate forces a refresh after a 401.
type Session struct {
	httpClient *http.Client
	oauthBase  string
	profiles   []ClientProfile
	buffer     time.Duration
	store      TokenStore
	logger     *logging.Logger

	mu      sync.Mutex
	current *TokenSet
	// reauthNeeded is set when a refresh fails with invalid_grant and
	// cleared once a device flow completes.
	reauthNeeded bool

	// refreshGroup collapses concurrent refresh attempts into one
	// request, since each refresh consumes the refresh token.
	refreshGroup singleflight.Group
}

// NewSession creates a Session backed by the given store.
func NewSession(store TokenStore, cfg Config, logger *logging.Logger) *Session {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	buffer := cfg.RefreshBuffer
	if buffer <= 0 {
		buffer = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &Session{
		httpClient: &http.Client{Timeout: timeout},
		oauthBase:  strings.TrimRight(cfg.OAuthBaseURL, "/"),
		profiles:   cfg.Profiles,
		buffer:     buffer,
		store:      store,
		logger:     logger.With("component", "auth"),
	}
}

// Authorized reports whether a token set is available, loading from the
// store if needed. It never triggers a refresh.
func (s *Session) Authorized(ctx context.Context) bool {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		return true
	}

	tokens, err := s.store.Load(ctx)
	if err != nil {
		return false
	}
	s.mu.Lock()
	s.current = tokens
	s.mu.Unlock()
	return true
}

// Token returns a live access token, refreshing when the current one is
// inside the expiry buffer. ErrReauthRequired (possibly wrapping
// ErrNoToken) means the device flow must be run again.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if cur == nil {
		tokens, err := s.store.Load(ctx)
		if errors.Is(err, ErrNoToken) {
			return "", fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.current = tokens
		s.mu.Unlock()
		cur = tokens
	}

	if !cur.ExpiresWithin(s.buffer) {
		return cur.AccessToken, nil
	}

	refreshed, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// ReauthRequired reports whether the stored refresh token has been
// revoked or spent, so the device flow must be run again.
func (s *Session) ReauthRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reauthNeeded
}

// Invalidate marks the current access token as unusable so the next Token
// call refreshes. Called by the transport after a 401.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.ExpiresAt = time.Time{}
	}
}

// refresh exchanges the refresh token for a new token set, persisting it
// before returning. Concurrent callers share one request.
func (s *Session) refresh(ctx context.Context) (*TokenSet, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur == nil {
			return nil, fmt.Errorf("%w: %w", ErrReauthRequired, ErrNoToken)
		}

		// Another caller may have refreshed while we waited.
		if !cur.ExpiresWithin(s.buffer) {
			return cur, nil
		}

		form := url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {cur.ClientID},
			"refresh_token": {cur.RefreshToken},
		}

		var resp tokenResponse
		if err := s.postForm(ctx, s.oauthBase+"/oauth2/token", form, &resp); err != nil {
			var oerr *oauthError
			if errors.As(err, &oerr) && oerr.Code == "invalid_grant" {
				// The refresh token was revoked or already spent.
				if clearErr := s.store.Clear(ctx); clearErr != nil {
					s.logger.Warn("failed to clear revoked token set", "error", clearErr)
				}
				s.mu.Lock()
				s.current = nil
				s.reauthNeeded = true
				s.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", ErrReauthRequired, oerr.Description)
			}
			return nil, fmt.Errorf("refreshing token: %w", err)
		}

		tokens := newTokenSet(cur.ClientID, cur.Scope, &resp)
		if err := s.store.Save(ctx, tokens); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.current = tokens
		s.reauthNeeded = false
		s.mu.Unlock()

		s.logger.Info("access token refreshed",
			"expires_at", tokens.ExpiresAt.Format(time.RFC3339),
			"rotated", tokens.RefreshToken != cur.RefreshToken)
		return tokens, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenSet), nil
}

// BeginDeviceAuthorization starts the device flow, trying each client
// profile in order and returning the credentials of the first that is
// accepted.
func (s *Session) BeginDeviceAuthorization(ctx context.Context) (*Credentials, error) {
	var lastErr error
	for _, profile := range s.profiles {
		form := url.Values{
			"client_id": {profile.ID},
			"scope":     {profile.Scope},
		}

		var resp deviceAuthResponse
		if err := s.postForm(ctx, s.oauthBase+"/oauth2/device_authorize", form, &resp); err != nil {
			s.logger.Warn("device authorization rejected for client profile", "error", err)
			lastErr = err
			continue
		}

		interval := time.Duration(resp.Interval) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		expiresIn := time.Duration(resp.ExpiresIn) * time.Second
		if expiresIn <= 0 {
			expiresIn = 5 * time.Minute
		}

		s.logger.Info("device authorization started",
			"verification_uri", resp.VerificationURI,
			"expires_in", expiresIn)

		return &Credentials{
			ClientID:                profile.ID,
			Scope:                   profile.Scope,
			DeviceCode:              resp.DeviceCode,
			UserCode:                resp.UserCode,
			VerificationURI:         resp.VerificationURI,
			VerificationURIComplete: resp.VerificationURIComplete,
			Interval:                interval,
			ExpiresAt:               time.Now().Add(expiresIn),
		}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no client profiles configured")
	}
	return nil, fmt.Errorf("starting device authorization: %w", lastErr)
}

// PollForToken performs one poll of the token endpoint for an in-flight
// device authorization. ErrAuthorizationPending and ErrSlowDown are
// retryable; anything else ends the flow.
func (s *Session) PollForToken(ctx context.Context, creds *Credentials) (*TokenSet, error) {
	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"client_id":   {creds.ClientID},
		"device_code": {creds.DeviceCode},
	}

	var resp tokenResponse
	if err := s.postForm(ctx, s.oauthBase+"/oauth2/token", form, &resp); err != nil {
		var oerr *oauthError
		if errors.As(err, &oerr) {
			switch oerr.Code {
			case "authorization_pending":
				return nil, ErrAuthorizationPending
			case "slow_down":
				return nil, ErrSlowDown
			case "expired_token":
				return nil, ErrExpiredCode
			case "access_denied":
				return nil, ErrAccessDenied
			}
		}
		return nil, fmt.Errorf("polling for token: %w", err)
	}

	tokens := newTokenSet(creds.ClientID, creds.Scope, &resp)
	if err := s.store.Save(ctx, tokens); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = tokens
	s.reauthNeeded = false
	s.mu.Unlock()

	s.logger.Info("device authorization completed",
		"expires_at", tokens.ExpiresAt.Format(time.RFC3339))
	return tokens, nil
}

// WaitForAuthorization polls until the user approves the device, the code
// expires, or the context is cancelled. slow_down stretches the interval
// by one second each time.
func (s *Session) WaitForAuthorization(ctx context.Context, creds *Credentials) (*TokenSet, error) {
	interval := creds.Interval
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		tokens, err := s.PollForToken(ctx, creds)
		switch {
		case err == nil:
			return tokens, nil
		case errors.Is(err, ErrAuthorizationPending):
		case errors.Is(err, ErrSlowDown):
			interval += time.Second
		default:
			return nil, err
		}

		if time.Now().After(creds.ExpiresAt) {
			return nil, ErrExpiredCode
		}
	}
}

// Error implements error for OAuth failure payloads.
func (e *oauthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth error %s: %s", e.Code, e.Description)
	}
	return "oauth error " + e.Code
}

// postForm sends a form-encoded POST and decodes the JSON response. Error
// statuses carrying an OAuth error body surface as *oauthError.
func (s *Session) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var oerr oauthError
		if json.Unmarshal(body, &oerr) == nil && oerr.Code != "" {
			return &oerr
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
