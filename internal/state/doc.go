// Package state caches the last known state of each home and publishes
// ordered diffs to subscribers.
//
// The cache is fed full snapshots by the poll scheduler and optimistic
// patches by the command dispatcher. Readers always get a consistent view:
// the stored snapshot with unexpired patches layered on top. Patches expire
// on their own or are dropped once a snapshot fetched after them arrives,
// so the vendor's view always wins eventually.
package state
