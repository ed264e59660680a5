package clickhouse

import "errors"

var (
	// ErrDisabled indicates ClickHouse is disabled in configuration.
	ErrDisabled = errors.New("clickhouse: disabled in configuration")

	// ErrConnectionFailed indicates the initial open or ping failed.
	ErrConnectionFailed = errors.New("clickhouse: connection failed")

	// ErrWriteFailed wraps a failed insert.
	ErrWriteFailed = errors.New("clickhouse: write failed")
)
