package transport

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for response classification. Use errors.Is to test.
var (
	// ErrUnauthorized means the request was rejected with 401 even after
	// a token refresh.
	ErrUnauthorized = errors.New("transport: unauthorized")

	// ErrRateLimited means the request was throttled (429) and retries
	// were exhausted. The wrapped APIError carries the retry-after hint.
	ErrRateLimited = errors.New("transport: rate limited")

	// ErrServer means the request failed with a 5xx after bounded retries.
	ErrServer = errors.New("transport: server error")

	// ErrNetwork means the request failed below HTTP level. For
	// state-changing requests this is ambiguous: the request may or may
	// not have reached the server.
	ErrNetwork = errors.New("transport: network error")
)

// bodyExcerptLimit caps how much of an error response body is retained.
const bodyExcerptLimit = 512

// APIError describes an HTTP-level failure from the vendor API.
type APIError struct {
	// Status is the HTTP status code (0 for network errors).
	Status int

	// RetryAfter is the server-supplied throttle delay, if any.
	RetryAfter time.Duration

	// Body is an excerpt of the response body, for diagnostics.
	Body string

	kind error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport: request failed: %s", e.Body)
	}
	if e.Body == "" {
		return fmt.Sprintf("transport: API request failed (%d)", e.Status)
	}
	return fmt.Sprintf("transport: API request failed (%d): %s", e.Status, e.Body)
}

// Unwrap exposes the classification sentinel (ErrUnauthorized,
// ErrRateLimited, ErrServer, ErrNetwork) for errors.Is.
func (e *APIError) Unwrap() error {
	return e.kind
}

// IsRejection reports whether err is an explicit 4xx refusal from the
// server, as opposed to a transient or ambiguous failure.
func IsRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429
}
