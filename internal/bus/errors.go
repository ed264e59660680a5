package bus

import "errors"

// Domain errors for the bus package.
var (
	// ErrNotConnected is returned when publishing without a connected session.
	ErrNotConnected = errors.New("bus: not connected")

	// ErrConnectFailed wraps the reason a connection attempt failed.
	ErrConnectFailed = errors.New("bus: connection failed")

	// ErrConnectionLost wraps the reason an established connection dropped.
	ErrConnectionLost = errors.New("bus: connection lost")
)
