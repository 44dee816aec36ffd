package state

import "errors"

var (
	// ErrStaleSnapshot indicates the offered snapshot was fetched no later
	// than the one already cached.
	ErrStaleSnapshot = errors.New("state: snapshot not newer than cached")

	// ErrUnknownHome indicates no snapshot has been cached for the home.
	ErrUnknownHome = errors.New("state: unknown home")

	// ErrUnknownZone indicates the cached snapshot has no such zone.
	ErrUnknownZone = errors.New("state: unknown zone")
)
