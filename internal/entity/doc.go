// Package entity adapts coordinator updates into host platform entities.
//
// A light device becomes one Light; a power plug becomes one Sensor per
// numeric field (voltage, current, usage today, power). Entities subscribe
// to their device's coordinator with Attach, translate every update into a
// State and push it to a Sink (MQTT, history, WebSocket).
//
// Lights also accept commands. A command goes straight to the cloud through
// the coordinator, bypassing the poll cache, and each confirmed attribute is
// applied immediately:
//
//	err := light.TurnOn(ctx, entity.TurnOnParams{Brightness: &b})
//	var cmdErr *entity.CommandError
//	if errors.As(err, &cmdErr) {
//	    // light state is unchanged
//	}
//
// When a poll fails the entity keeps its last known values and is marked
// stale until the next successful poll.
package entity
