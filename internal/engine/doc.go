// Package engine wires the vendor client, state cache, poll scheduler,
// and command dispatcher into one facade.
//
// On startup it discovers the account's homes, detects which product
// generation each one speaks (v2 zones or Tado X rooms), and runs a poll
// loop per home. Consumers read cached state, subscribe to diffs, and
// submit tracked commands; they never talk to the vendor directly.
package engine
