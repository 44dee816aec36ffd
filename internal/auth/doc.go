// Package auth implements the OAuth2 device-authorization flow against the
// vendor's login service and manages the resulting token set.
//
// A Session hands out bearer tokens to the transport layer, refreshing them
// ahead of expiry and persisting rotated refresh tokens immediately. Tokens
// are stored in SQLite so a restart does not force the user back through
// device authorization.
//
// Refresh tokens grant full account access; log only their presence, never
// their value.
package auth
