package entity

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
)

// State sources.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

// State is one entity state as handed to the host platform.
type State struct {
	EntityID string      `json:"entity_id"`
	DeviceID string      `json:"device_id"`
	Kind     device.Kind `json:"kind"`
	Name     string      `json:"name"`

	// Stale is set while the device's polls are failing; Attributes then
	// hold the last known values.
	Stale bool `json:"stale"`

	Attributes map[string]any `json:"attributes"`

	Source string    `json:"source"`
	Time   time.Time `json:"time"`
}

// Sink receives every state an entity publishes. Calls for one entity are
// serialised and may come from a coordinator callback, so PublishState must
// not block on I/O. A Sink must not call back into the entity.
type Sink interface {
	PublishState(state State)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(State)

// PublishState implements Sink.
func (f SinkFunc) PublishState(s State) { f(s) }

// Source is the coordinator surface an entity uses.
// *coordinator.Coordinator satisfies it.
type Source interface {
	Subscribe(fn coordinator.Callback) (coordinator.Token, error)
	Unsubscribe(token coordinator.Token) bool
	SendCommand(ctx context.Context, cmd cloud.Command) error
}

// Entity is the common surface of lights and sensors.
type Entity interface {
	// ID is the unique entity identifier.
	ID() string
	DeviceID() string
	Kind() device.Kind

	// State returns the current state without publishing it.
	State() State

	// Attach subscribes to the device coordinator. A cached snapshot is
	// applied and published before Attach returns.
	Attach() error

	// Detach unsubscribes; no update is applied after it returns.
	Detach()
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Build creates the entities for one registry entry: one light for a light
// device, one sensor per field for a sensor device, none for a remote.
func Build(e *coordinator.Entry, sink Sink, transforms map[cloud.Field]Transform, logger Logger) []Entity {
	if e == nil || e.Coordinator == nil {
		return nil
	}

	switch e.Device.Kind {
	case device.KindLight:
		l := NewLight(e.Device, e.Coordinator, sink)
		if logger != nil {
			l.SetLogger(logger)
		}
		return []Entity{l}
	case device.KindSensor:
		sensors := NewSensors(e.Device, e.Coordinator, sink, transforms)
		out := make([]Entity, 0, len(sensors))
		for _, s := range sensors {
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}
