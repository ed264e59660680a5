package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/casa-core/internal/device"
)

// Measurement names.
const (
	MeasurementSensor      = "sensor"
	MeasurementDeviceState = "device_state"
)

// WriteSensorReading writes the known values of a sensor reading as one
// point. Unknown values are left out; a reading with nothing known still
// records motion.
//
// Example:
//
//	client.WriteSensorReading(store.Sensors(), time.Now())
func (c *Client) WriteSensorReading(reading device.SensorReading, ts time.Time) {
	fields := map[string]interface{}{
		"motion": reading.MotionDetected,
	}
	if v, ok := reading.TemperatureC.Float(); ok {
		fields["temperature_c"] = v
	}
	if v, ok := reading.HumidityPct.Float(); ok {
		fields["humidity_pct"] = v
	}

	c.WritePointWithTime(MeasurementSensor,
		map[string]string{"room": string(device.SensorEntity.Room)},
		fields, ts)
}

// WriteDeviceState records a device's status after a change.
//
// Parameters:
//   - d: Device snapshot as published by the device store
//   - ts: Time of the change
func (c *Client) WriteDeviceState(d device.Device, ts time.Time) {
	c.WritePointWithTime(MeasurementDeviceState,
		map[string]string{
			"room":   string(d.Key.Room),
			"device": d.Key.Device,
			"kind":   string(d.Kind),
		},
		map[string]interface{}{
			"status":  string(d.Status),
			"active":  d.Active(),
			"pending": d.Pending,
		},
		ts)
}

// WritePoint writes a custom point stamped with the current time.
//
// Example:
//
//	client.WritePoint("bus",
//	    map[string]string{"broker": "broker.hivemq.com"},
//	    map[string]interface{}{"connected": true})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
// Dropped silently when the client is not connected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
