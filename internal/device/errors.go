package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a device is missing its ID, name or kind.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidHistory is returned for malformed state history writes or queries.
	ErrInvalidHistory = errors.New("device: invalid state history entry")
)
