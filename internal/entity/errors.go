package entity

import (
	"errors"
	"fmt"
)

// Domain errors for the entity package.
var (
	// ErrAlreadyAttached is returned by Attach on an attached entity.
	ErrAlreadyAttached = errors.New("entity: already attached")

	// ErrUnknownField is returned when creating a sensor for an unsupported field.
	ErrUnknownField = errors.New("entity: unknown sensor field")
)

// CommandError is returned when a light command fails. It wraps the
// underlying cloud or coordinator error, so errors.Is(err, cloud.ErrAuth)
// and friends still work.
type CommandError struct {
	EntityID string
	Command  string
	Err      error
}

// Error implements error.
func (e *CommandError) Error() string {
	return fmt.Sprintf("entity %s: command %s failed: %v", e.EntityID, e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}
