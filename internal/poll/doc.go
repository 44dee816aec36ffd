// Package poll drives the periodic state fetch for each home.
//
// Each home runs its own loop at a base cadence. Failures stretch the
// cadence exponentially up to a ceiling, honouring any Retry-After the
// vendor sent, and a run of consecutive successes snaps it back. The cache
// keeps serving the last good snapshot throughout; stale data beats no
// data.
package poll
