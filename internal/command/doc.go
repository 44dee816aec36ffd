// Package command turns write requests into tracked vendor calls.
//
// Every submission gets a UUID that doubles as its idempotency key, so an
// ambiguous network failure can be re-sent without risking a duplicate
// effect. Acknowledged commands patch the state cache optimistically and
// stay pending until a later snapshot confirms the change or enough poll
// cycles pass without it appearing, which expires the command.
package command
