package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/casa-core/internal/device"
	"github.com/nerrad567/casa-core/internal/infrastructure/clickhouse"
	"github.com/nerrad567/casa-core/internal/infrastructure/influxdb"
)

// Sink receives history points.
type Sink interface {
	Name() string
	RecordSensors(ctx context.Context, reading device.SensorReading, ts time.Time) error
	RecordDevice(ctx context.Context, d device.Device, ts time.Time) error
}

// InfluxSink writes through the non-blocking InfluxDB write API. Errors
// surface on the client's SetOnError callback, not here.
type InfluxSink struct {
	Client *influxdb.Client
}

// Name implements Sink.
func (s InfluxSink) Name() string { return "influxdb" }

// RecordSensors implements Sink.
func (s InfluxSink) RecordSensors(_ context.Context, reading device.SensorReading, ts time.Time) error {
	s.Client.WriteSensorReading(reading, ts)
	return nil
}

// RecordDevice implements Sink.
func (s InfluxSink) RecordDevice(_ context.Context, d device.Device, ts time.Time) error {
	s.Client.WriteDeviceState(d, ts)
	return nil
}

// ClickHouseSink inserts rows synchronously.
type ClickHouseSink struct {
	Client *clickhouse.Client
}

// Name implements Sink.
func (s ClickHouseSink) Name() string { return "clickhouse" }

// RecordSensors implements Sink.
func (s ClickHouseSink) RecordSensors(ctx context.Context, reading device.SensorReading, ts time.Time) error {
	return s.Client.SaveSensorReading(ctx, reading, ts)
}

// RecordDevice implements Sink.
func (s ClickHouseSink) RecordDevice(ctx context.Context, d device.Device, ts time.Time) error {
	return s.Client.SaveDeviceState(ctx, d, ts)
}
