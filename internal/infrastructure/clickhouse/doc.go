// Package clickhouse stores sensor and device history in ClickHouse.
//
// Each reading lands in its own MergeTree table (sensor_temperature,
// sensor_humidity, sensor_motion, device_state), ordered by room and time.
// The package only writes; history queries are left to ClickHouse tooling.
package clickhouse
