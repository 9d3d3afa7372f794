package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the panel.
const (
	MeasurementReadings = "device_readings"
	MeasurementSync     = "sync_state"
)

// WriteReading records one device reading at the time the backend observed it.
//
// Tags (device_id, hub_id, category) are low cardinality per installation;
// the reading is the single field "value". A zero observedAt falls back to now.
//
// Example:
//
//	client.WriteReading("temp-lounge", "hub-1", "environmental", 21.5, observedAt)
func (c *Client) WriteReading(deviceID, hubID, category string, value float64, observedAt time.Time) {
	if !c.IsConnected() {
		return
	}
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	point := write.NewPoint(
		MeasurementReadings,
		map[string]string{
			"device_id": deviceID,
			"hub_id":    hubID,
			"category":  category,
		},
		map[string]interface{}{
			"value": value,
		},
		observedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteSyncState records a live sync state transition, so dashboards can
// shade the periods when readings came from polling or were stale.
func (c *Client) WriteSyncState(state string, reconnectAttempts int, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementSync,
		map[string]string{
			"state": state,
		},
		map[string]interface{}{
			"reconnect_attempts": reconnectAttempts,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
