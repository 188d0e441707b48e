// Package bridge connects cloud entities to the host platform over MQTT.
//
// Outbound, the Bridge is the entity.Sink. PublishState only queues the
// state; a per-entity worker then publishes it retained on
// graylogic/state/cloud/{entity_id}, writes it to InfluxDB, records it in the
// SQLite state history and broadcasts it to WebSocket clients.
// Poll failures are broadcast as device.poll_failed events.
//
// Inbound, commands on graylogic/command/cloud/{entity_id} are executed
// against light entities and acknowledged on graylogic/ack/cloud/{entity_id}:
//
//	{"id":"c1","command":"turn_on","parameters":{"brightness":128}}
//	{"command_id":"c1","status":"accepted","entity_id":"6055F92FCFD2",...}
//
// A HealthReporter republishes retained health on graylogic/health/cloud
// every 30s by default, degraded while MQTT is down or any device's polls
// are failing.
//
// Startup order:
//
//	b, _ := bridge.New(bridge.Options{MQTT: client, Registry: reg, ...})
//	for _, e := range reg.Devices() {
//	    b.Register(entity.Build(e, b, transforms, logger)...)
//	}
//	reg.Start(ctx)  // first refresh
//	b.Start(ctx)    // attach entities, publish cached state
package bridge
