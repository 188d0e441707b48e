package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/device"
	"github.com/nerrad567/gray-logic-cloud/internal/entity"
)

// Protocol identifies this bridge in messages to the host.
const Protocol = "cloud"

// Command names accepted on command topics.
const (
	CommandTurnOn  = "turn_on"
	CommandTurnOff = "turn_off"
)

// CommandMessage is received from the host to control an entity.
// Topic: graylogic/command/cloud/{entity_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp,omitempty"`

	// Command is "turn_on" or "turn_off".
	Command string `json:"command"`

	Parameters CommandParameters `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// CommandParameters are the optional turn_on parameters.
type CommandParameters struct {
	// Brightness on the 0-255 scale.
	Brightness *int `json:"brightness,omitempty"`

	ColorTempKelvin *int `json:"color_temp_kelvin,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates the vendor cloud accepted every command sent.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/cloud/{entity_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError details a failed command. Code is one of the cloud error codes
// ("auth_failed", "rate_limited", "command_rejected", ...) or a bridge code
// ("unknown_entity", "not_supported", "invalid_command", "stopped").
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage carries an entity state to the host.
// Topic: graylogic/state/cloud/{entity_id}
// QoS: configured, Retained: Yes
type StateMessage struct {
	EntityID  string         `json:"entity_id"`
	DeviceID  string         `json:"device_id"`
	Kind      device.Kind    `json:"kind"`
	Name      string         `json:"name"`
	Stale     bool           `json:"stale"`
	State     map[string]any `json:"state"`
	Source    string         `json:"source"`
	Protocol  string         `json:"protocol"`
	Timestamp time.Time      `json:"timestamp"`
}

func newStateMessage(s entity.State) StateMessage {
	return StateMessage{
		EntityID:  s.EntityID,
		DeviceID:  s.DeviceID,
		Kind:      s.Kind,
		Name:      s.Name,
		Stale:     s.Stale,
		State:     s.Attributes,
		Source:    s.Source,
		Protocol:  Protocol,
		Timestamp: s.Time,
	}
}

// HealthStatus is the bridge's operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge health.
// Topic: graylogic/health/cloud
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge          string          `json:"bridge"`
	Site            string          `json:"site,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	Status          HealthStatus    `json:"status"`
	Version         string          `json:"version"`
	UptimeSeconds   int64           `json:"uptime_seconds"`
	DevicesManaged  int             `json:"devices_managed"`
	EntitiesManaged int             `json:"entities_managed"`
	DevicesFailing  int             `json:"devices_failing"`
	Failing         []FailingDevice `json:"failing,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// FailingDevice describes a device whose polls are failing.
type FailingDevice struct {
	DeviceID  string `json:"device_id"`
	Failures  int    `json:"failures"`
	Error     string `json:"error,omitempty"`
	Suspended bool   `json:"suspended,omitempty"`
}

// PollFailedEvent is broadcast when a device poll fails.
type PollFailedEvent struct {
	DeviceID  string    `json:"device_id"`
	Failures  int       `json:"failures"`
	Error     string    `json:"error"`
	ErrorCode string    `json:"error_code"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types passed to the Broadcaster.
const (
	EventStateChanged = "entity.state_changed"
	EventPollFailed   = "device.poll_failed"
)
