// Package mqtt provides MQTT connectivity for the cloud bridge.
//
// The bridge publishes entity state and health to the host platform's broker
// and receives light commands from it:
//
//	graylogic/state/cloud/{entity_id}    retained entity state
//	graylogic/command/cloud/{entity_id}  inbound commands
//	graylogic/ack/cloud/{entity_id}      command acknowledgements
//	graylogic/health/cloud               retained bridge health + LWT
//
// The client reconnects automatically and re-subscribes its routes after
// every reconnect. Handler panics are recovered and logged.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1, handleCommand)
//	err = client.Publish(mqtt.Topics{}.State(id), payload, 1, true)
//
// TLS should be enabled (cfg.Broker.TLS) whenever the broker is not on the
// same host.
package mqtt
