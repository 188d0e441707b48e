// Package api implements the HTTP REST API and WebSocket server of the
// cloud bridge.
//
// This package provides:
//   - Device endpoints: inventory, coordinator status, on-demand refresh,
//     raw vendor commands and state history
//   - Entity endpoints: current entity states and light control
//   - A WebSocket hub streaming entity.state_changed and device.poll_failed
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/devices
//	GET  /api/v1/devices/{id}
//	POST /api/v1/devices/{id}/refresh
//	POST /api/v1/devices/{id}/commands
//	GET  /api/v1/devices/{id}/history
//	GET  /api/v1/entities
//	GET  /api/v1/entities/{id}
//	POST /api/v1/lights/{id}/turn_on
//	POST /api/v1/lights/{id}/turn_off
//	GET  /api/v1/ws
//
// Vendor failures map to HTTP statuses: rejected commands are 422, rate
// limiting 429, authentication and network failures 502, timeouts 504, and
// a stopped bridge 503. The error body carries the vendor error code.
//
// The API listens on the local network only; authentication is left to the
// host platform in front of it.
package api
