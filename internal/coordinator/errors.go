package coordinator

import "errors"

// Domain errors for the coordinator package.
var (
	// ErrStopped is returned by every operation on a coordinator after Stop.
	ErrStopped = errors.New("coordinator: stopped")

	// ErrPollInFlight is returned by Refresh when a poll is already running.
	// The running poll's result is delivered to subscribers as usual.
	ErrPollInFlight = errors.New("coordinator: poll already in flight")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("coordinator: already started")

	// ErrNilCallback is returned by Subscribe for a nil callback.
	ErrNilCallback = errors.New("coordinator: callback is nil")

	// ErrDeviceNotFound is returned by the registry for unknown device IDs.
	ErrDeviceNotFound = errors.New("coordinator: device not found")

	// ErrDuplicateDevice is returned when a device is added to a registry twice.
	ErrDuplicateDevice = errors.New("coordinator: device already registered")

	// ErrNoStatus is returned when a status operation targets a command-only device.
	ErrNoStatus = errors.New("coordinator: device has no status endpoint")
)
