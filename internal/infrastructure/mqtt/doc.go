// Package mqtt publishes state changes and command lifecycle events to an
// MQTT broker.
//
// The sink is optional and strictly outbound: nothing in the engine
// depends on the broker, and a broker outage only costs external
// observers their updates. Connection management (LWT, auto-reconnect,
// online/offline status) follows the usual home-automation conventions so
// the topics slot into existing dashboards.
package mqtt
