package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
)

// Default retry/backoff parameters.
const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 60 * time.Second
)

// TokenSource supplies bearer tokens for outgoing requests.
//
// Token returns a currently valid access token, refreshing if necessary.
// Invalidate drops the cached access token so the next Token call forces
// a refresh; the client calls it after a 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Config contains transport tuning knobs.
type Config struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxRetries bounds retry attempts for throttled and 5xx responses.
	MaxRetries int

	// BackoffBase is the first retry delay; doubles each attempt.
	BackoffBase time.Duration

	// BackoffCap is the ceiling for the computed delay.
	BackoffCap time.Duration
}

// Client is a rate-limit-aware HTTP client for the vendor API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	http   *http.Client
	tokens TokenSource
	cfg    Config
	logger *logging.Logger
}

// New creates a Client using the given token source.
// Zero-valued Config fields get defaults.
func New(tokens TokenSource, cfg Config, logger *logging.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if logger == nil {
		logger = logging.Noop()
	}

	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		cfg:    cfg,
		logger: logger.With("component", "transport"),
	}
}

type requestOptions struct {
	idempotencyKey string
}

// RequestOption customises a single request.
type RequestOption func(*requestOptions)

// WithIdempotencyKey marks a state-changing request as safely retryable.
// The key is sent as both X-Request-Id and Idempotency-Key so the server
// can de-duplicate re-sends.
func WithIdempotencyKey(key string) RequestOption {
	return func(o *requestOptions) {
		o.idempotencyKey = key
	}
}

// Get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodGet, url, nil, out)
}

// Do issues an authenticated request.
//
// body (if non-nil) is JSON-encoded; out (if non-nil) receives the decoded
// JSON response. A 204 leaves out untouched.
func (c *Client) Do(ctx context.Context, method, url string, body, out any, opts ...RequestOption) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	// GETs are idempotent by nature; writes only when the caller supplied
	// a de-duplication key.
	retryable := method == http.MethodGet || o.idempotencyKey != ""

	refreshed := false
	attempt := 0

	for {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquiring token: %w", err)
		}

		resp, err := c.send(ctx, method, url, payload, token, o.idempotencyKey)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A dropped connection on a write has an unknown outcome even
			// with a key present: surface it and let the caller decide.
			if method == http.MethodGet && attempt < c.cfg.MaxRetries {
				if werr := c.wait(ctx, c.backoff(attempt)); werr != nil {
					return werr
				}
				attempt++
				continue
			}
			return &APIError{Body: err.Error(), kind: ErrNetwork}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			apiErr := drainError(resp, ErrUnauthorized)
			if !refreshed {
				refreshed = true
				c.logger.Debug("got 401, refreshing token and retrying", "url", url)
				c.tokens.Invalidate()
				continue
			}
			return apiErr

		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr := drainError(resp, ErrRateLimited)
			if attempt < c.cfg.MaxRetries {
				delay := c.backoff(attempt)
				if apiErr.RetryAfter > delay {
					delay = apiErr.RetryAfter
				}
				c.logger.Debug("rate limited, backing off",
					"url", url, "delay", delay, "attempt", attempt+1)
				if werr := c.wait(ctx, delay); werr != nil {
					return werr
				}
				attempt++
				continue
			}
			return apiErr

		case resp.StatusCode >= 500:
			apiErr := drainError(resp, ErrServer)
			if retryable && attempt < c.cfg.MaxRetries {
				if werr := c.wait(ctx, c.backoff(attempt)); werr != nil {
					return werr
				}
				attempt++
				continue
			}
			return apiErr

		case resp.StatusCode == http.StatusNoContent:
			resp.Body.Close() //nolint:errcheck // Nothing to read
			return nil

		case resp.StatusCode >= 400:
			return drainError(resp, nil)
		}

		return decodeBody(resp, out)
	}
}

// send builds and executes a single HTTP attempt.
func (c *Client) send(ctx context.Context, method, url string, payload []byte, token, idempotencyKey string) (*http.Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Request-Id", idempotencyKey)
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return c.http.Do(req)
}

// backoff computes the delay before retry attempt n (0-based), with jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 0; i < attempt && d < c.cfg.BackoffCap; i++ {
		d *= 2
	}
	if d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	// Jitter in [d/2, d) spreads retries from concurrent pollers.
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1)) //nolint:gosec // Not cryptographic
}

// wait sleeps for d or until ctx is cancelled.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drainError reads the response body into an APIError and closes it.
func drainError(resp *http.Response, kind error) *APIError {
	defer resp.Body.Close() //nolint:errcheck // Best effort

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptLimit)) //nolint:errcheck // Excerpt only

	return &APIError{
		Status:     resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Body:       string(excerpt),
		kind:       kind,
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// decodeBody decodes a successful response into out and closes the body.
func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close() //nolint:errcheck // Read fully below

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Body: err.Error(), kind: ErrNetwork}
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
