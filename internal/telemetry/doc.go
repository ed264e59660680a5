// Package telemetry forwards device and sensor changes to the time-series
// sinks (InfluxDB, ClickHouse).
//
// The Recorder is fed from the engine's OnDevices hook. Hooks must not
// block, so changes are queued and written by a single background
// goroutine; when the queue is full the change is dropped and counted.
// Sinks never feed anything back into the device store.
package telemetry
