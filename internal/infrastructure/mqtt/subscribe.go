package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler handles one inbound message. A returned error is logged.
// Handlers run on paho's goroutine and should hand long work off.
type MessageHandler func(topic string, payload []byte) error

// route is a subscription kept for re-subscription after a reconnect.
type route struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Subscribe routes messages on topic (wildcards allowed, e.g.
// Topics{}.AllCommands()) to handler. The route survives reconnects.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := await(c.paho.Subscribe(topic, qos, c.dispatch(handler)), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.mu.Lock()
	c.routes[topic] = route{topic: topic, qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// dispatch adapts a MessageHandler to paho and recovers handler panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logWarn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
