package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementState  = "blebox_state"
	measurementHealth = "blebox_health"
)

// WriteDeviceState records the numeric leaves of a device state payload.
// Empty field sets are dropped since line protocol requires at least one field.
//
//	client.WriteDeviceState("1afe34e750b8", "switchbox", map[string]float64{"relays_0_state": 1})
func (c *Client) WriteDeviceState(deviceID, deviceType string, fields map[string]float64) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(statePoint(deviceID, deviceType, fields, time.Now()))
}

// WriteDeviceHealth records a device's responsiveness and failure count.
func (c *Client) WriteDeviceHealth(deviceID, deviceType string, responding bool, failures int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(healthPoint(deviceID, deviceType, responding, failures, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func deviceTags(deviceID, deviceType string) map[string]string {
	return map[string]string{
		"device_id":   deviceID,
		"device_type": deviceType,
	}
}

func statePoint(deviceID, deviceType string, fields map[string]float64, ts time.Time) *write.Point {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return write.NewPoint(measurementState, deviceTags(deviceID, deviceType), values, ts)
}

func healthPoint(deviceID, deviceType string, responding bool, failures int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementHealth,
		deviceTags(deviceID, deviceType),
		map[string]any{
			"responding": responding,
			"failures":   int64(failures),
		},
		ts,
	)
}
