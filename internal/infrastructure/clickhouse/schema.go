package clickhouse

const createTemperatureTable = `
CREATE TABLE IF NOT EXISTS sensor_temperature (
    timestamp DateTime64(3),
    room      LowCardinality(String),
    value     Float64
) ENGINE = MergeTree()
ORDER BY (room, timestamp)`

const createHumidityTable = `
CREATE TABLE IF NOT EXISTS sensor_humidity (
    timestamp DateTime64(3),
    room      LowCardinality(String),
    value     Float64
) ENGINE = MergeTree()
ORDER BY (room, timestamp)`

const createMotionTable = `
CREATE TABLE IF NOT EXISTS sensor_motion (
    timestamp DateTime64(3),
    room      LowCardinality(String),
    detected  Bool
) ENGINE = MergeTree()
ORDER BY (room, timestamp)`

const createDeviceStateTable = `
CREATE TABLE IF NOT EXISTS device_state (
    timestamp DateTime64(3),
    room      LowCardinality(String),
    device    LowCardinality(String),
    status    LowCardinality(String),
    pending   Bool
) ENGINE = MergeTree()
ORDER BY (room, device, timestamp)`

// AllTables returns the DDL for every table, in creation order.
func AllTables() []string {
	return []string{
		createTemperatureTable,
		createHumidityTable,
		createMotionTable,
		createDeviceStateTable,
	}
}
