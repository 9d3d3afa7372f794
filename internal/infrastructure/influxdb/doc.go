// Package influxdb provides InfluxDB connectivity for the panel.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Purpose
//
// The optional reading recorder keeps a local history of device readings
// (measurement "device_readings") and live sync state transitions
// (measurement "sync_state"), independent of the backend's own history.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading("temp-lounge", "hub-1", "environmental", 21.5, observedAt)
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the callback set
// with SetOnError. Connection and health check errors are returned directly.
package influxdb
