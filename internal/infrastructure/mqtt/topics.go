package mqtt

import (
	"fmt"
	"strings"
)

// Topic scheme: graylogic/{category}/cloud/{entity_id}.
const (
	// TopicPrefix is the root of every topic the bridge uses.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment identifying this bridge.
	Protocol = "cloud"

	categoryState   = "state"
	categoryCommand = "command"
	categoryAck     = "ack"
	categoryHealth  = "health"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.State("6055F92FCFD2")
//	// Returns: "graylogic/state/cloud/6055F92FCFD2"
type Topics struct{}

// State returns the retained state topic for an entity.
//
// Example: graylogic/state/cloud/6055F92FCFD2-voltage
func (Topics) State(entityID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, categoryState, Protocol, entityID)
}

// Command returns the inbound command topic for an entity.
//
// Example: graylogic/command/cloud/6055F92FCFD2
func (Topics) Command(entityID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, categoryCommand, Protocol, entityID)
}

// Ack returns the command acknowledgement topic for an entity.
func (Topics) Ack(entityID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, categoryAck, Protocol, entityID)
}

// Health returns the retained bridge health topic, which also carries the LWT.
//
// Example: graylogic/health/cloud
func (Topics) Health() string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, categoryHealth, Protocol)
}

// AllCommands returns the pattern matching every command to this bridge.
//
// Pattern: graylogic/command/cloud/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/%s/%s/+", TopicPrefix, categoryCommand, Protocol)
}

// AllStates returns the pattern matching every entity state of this bridge.
//
// Pattern: graylogic/state/cloud/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/%s/%s/+", TopicPrefix, categoryState, Protocol)
}

// ParseEntityTopic extracts the category and entity ID from a bridge topic.
//
// Returns:
//   - category: "state", "command" or "ack"
//   - entityID: The last topic segment
//   - error: ErrInvalidTopic if the topic is not graylogic/{category}/cloud/{id}
func ParseEntityTopic(topic string) (category, entityID string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[2] != Protocol || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	switch parts[1] {
	case categoryState, categoryCommand, categoryAck:
		return parts[1], parts[3], nil
	default:
		return "", "", fmt.Errorf("%w: unknown category in %q", ErrInvalidTopic, topic)
	}
}
