package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a key is not in the catalog.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidMutation is returned when a mutation names an unknown field
	// or carries a value of the wrong type for its field.
	ErrInvalidMutation = errors.New("device: invalid mutation")

	// ErrInvalidCatalog is returned when a catalog has duplicate keys or
	// incomplete entries.
	ErrInvalidCatalog = errors.New("device: invalid catalog")
)
