// Package coordinator polls device status from the cloud API, caches the
// latest snapshot per device and fans updates out to subscribers.
//
// # Architecture
//
//	┌──────────────┐  FetchStatus   ┌──────────────┐  Update   ┌──────────────┐
//	│ cloud.Client │◀───────────────│ Coordinator  │──────────▶│  entities    │
//	│              │  SendCommand   │ (per device) │  (clone)  │ (light,      │
//	│              │◀───────────────│              │           │  sensors)    │
//	└──────────────┘                └──────┬───────┘           └──────────────┘
//	        ▲                              │
//	        │          ┌──────────┐        │
//	        └──────────│  Budget  │◀───────┘  shared by every coordinator
//	                   └──────────┘
//
// Each Coordinator runs one goroutine driven by a timer. Polls are
// single-flight; failures retain the last snapshot and stretch the interval
// by exponential backoff; an authentication failure suspends polling until
// Resume. Subscribers are called in registration order, one at a time, each
// with its own clone of the snapshot, and a new subscriber is handed the
// cached snapshot exactly once.
//
// A Budget (weighted semaphore plus optional token bucket) bounds the
// requests all coordinators of one account make at any moment.
//
// # Usage
//
//	budget := coordinator.NewBudget(4, 1, 1)
//	reg := coordinator.NewRegistry(client, coordinator.Options{
//	    Interval: 10 * time.Minute,
//	    Budget:   budget,
//	    Logger:   log,
//	})
//	for _, d := range devices {
//	    reg.Add(d)
//	}
//	failures, err := reg.Start(ctx)
//	defer reg.Stop()
package coordinator
