package auth

import "errors"

var (
	// ErrNoToken indicates no token set has been persisted yet.
	ErrNoToken = errors.New("auth: no stored token")

	// ErrAuthorizationPending indicates the user has not approved the
	// device yet; keep polling.
	ErrAuthorizationPending = errors.New("auth: authorization pending")

	// ErrSlowDown indicates the server wants a longer polling interval.
	ErrSlowDown = errors.New("auth: slow down")

	// ErrExpiredCode indicates the device code expired before approval.
	ErrExpiredCode = errors.New("auth: device code expired")

	// ErrAccessDenied indicates the user declined the authorization.
	ErrAccessDenied = errors.New("auth: access denied")

	// ErrReauthRequired indicates the refresh token is no longer valid
	// and the device flow must be run again.
	ErrReauthRequired = errors.New("auth: re-authorization required")
)
