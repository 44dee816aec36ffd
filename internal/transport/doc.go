// Package transport issues authenticated HTTP requests to the Tado cloud.
//
// It attaches bearer tokens from an auth session, performs exactly one
// refresh-and-retry on 401, honours Retry-After on 429 (falling back to
// exponential backoff with jitter), and retries 5xx a bounded number of
// times. GET requests are retried freely; state-changing requests are
// retried only when the caller supplies an idempotency key, and never
// when the first attempt's outcome is unknown (connection dropped
// mid-request) - that ambiguity is surfaced to the caller.
package transport
