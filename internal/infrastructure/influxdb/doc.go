// Package influxdb provides InfluxDB connectivity for casa-core telemetry.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, point writing and health monitoring.
//
// # Purpose
//
// Two measurements are written:
//   - sensor: temperature_c and humidity_pct from casa/sala/dados, and
//     motion from casa/garagem/status
//   - device_state: one point per observable device change, tagged with
//     room and device, carrying status and pending
//
// Nothing is read back. The series exist for dashboards and history only.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSensorReading(reading, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; write errors
// are delivered to the SetOnError callback.
package influxdb
