package router

import "errors"

// Domain errors for the router package.
var (
	// ErrMalformedPayload is returned when a bound topic carries a payload
	// its parser cannot read.
	ErrMalformedPayload = errors.New("router: malformed payload")

	// ErrInvalidBinding is returned when a binding table has an empty topic,
	// a nil parser or a duplicate topic.
	ErrInvalidBinding = errors.New("router: invalid binding")
)
