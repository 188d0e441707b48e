package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourcePoll    = "poll"
	StateHistorySourceCommand = "command"
)

// State is the JSON-serialisable state of one entity.
type State map[string]any

// StateHistoryEntry represents a single published entity state.
//
// Each entry stores a full snapshot of the entity state as it was handed to
// the host platform, giving a local audit trail even when InfluxDB is not
// configured.
type StateHistoryEntry struct {
	ID int64 `json:"id"`

	EntityID string `json:"entity_id"`
	DeviceID string `json:"device_id"`

	State State `json:"state"`

	// Source is poll for coordinator updates, command for optimistic updates.
	Source string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves entity state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange records one published entity state.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - entityID: Platform entity identifier
	//   - deviceID: Device the entity belongs to
	//   - state: State snapshot to persist
	//   - source: Origin of the change (poll, command)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, entityID, deviceID string, state State, source string) error

	// GetHistory returns recent history for every entity of a device,
	// newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than the given duration.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
