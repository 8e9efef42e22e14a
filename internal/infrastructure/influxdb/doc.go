// Package influxdb records BleBox device telemetry in InfluxDB v2.
//
// Two measurements are written, both tagged with device_id and device_type:
//
//	blebox_state   numeric leaves of the device state (relays_0_state, ...)
//	blebox_health  responding (bool), failures (int)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceHealth("1afe34e750b8", "switchbox", true, 0)
//
// *Client satisfies blebox.Telemetry. Writes are non-blocking and batched
// according to batch_size and flush_interval; asynchronous write failures
// are delivered to the SetOnError callback.
package influxdb
