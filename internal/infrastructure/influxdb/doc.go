// Package influxdb records zone and weather telemetry to InfluxDB v2.
//
// Like the MQTT sink this is optional and strictly outbound. Points are
// written through the non-blocking batched write API; a slow or absent
// InfluxDB never blocks the poll loop, it only loses history.
package influxdb
