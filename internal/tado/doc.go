// Package tado models the Tado cloud API: homes, zones, devices, zone
// state, weather, and the control payloads the API accepts.
//
// Zone state decoding is variant-aware: the "setting" block carries a
// type discriminator (HEATING, HOT_WATER, AIR_CONDITIONING) and the
// decoder populates the matching variant, preserving unrecognised types
// raw for forward compatibility.
//
// Tado X homes expose a different surface (the hops API, rooms instead
// of zones); Room.ZoneState() maps a room onto the v2 zone-state shape
// so the rest of the engine handles both generations uniformly.
package tado
