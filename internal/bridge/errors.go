package bridge

import "errors"

// Domain errors for the bridge.
var (
	// ErrMQTTRequired is returned by New without an MQTT client.
	ErrMQTTRequired = errors.New("bridge: MQTT client is required")

	// ErrRegistryRequired is returned by New without a coordinator registry.
	ErrRegistryRequired = errors.New("bridge: registry is required")

	// ErrUnknownEntity is returned for a command to an unregistered entity.
	ErrUnknownEntity = errors.New("bridge: unknown entity")

	// ErrNotSupported is returned for a command to an entity that takes none.
	ErrNotSupported = errors.New("bridge: entity does not accept commands")

	// ErrInvalidCommand is returned for an unknown command name or bad payload.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("bridge: already started")
)
