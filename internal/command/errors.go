package command

import "errors"

// Domain errors for the command package.
//
// A not-connected rejection is reported as bus.ErrNotConnected.
var (
	// ErrUnknownDevice is returned when the device key is not in the catalog.
	ErrUnknownDevice = errors.New("command: unknown device")

	// ErrReadOnlyDevice is returned for automatic devices with no command topic.
	ErrReadOnlyDevice = errors.New("command: device is read-only")

	// ErrInvalidCommand is returned when the token is outside the device kind's vocabulary.
	ErrInvalidCommand = errors.New("command: invalid command for device")

	// ErrPublishFailed is returned or reported when the transport rejects a command.
	ErrPublishFailed = errors.New("command: publish failed")
)
