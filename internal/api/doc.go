// Package api provides the HTTP REST API and WebSocket server for the
// BleBox bridge.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Endpoints
//
// All routes live under /api/v1:
//
//	GET    /health                 liveness, version, device counts
//	GET    /devices                every tracked device
//	GET    /devices/{id}           one device
//	POST   /devices/{id}/command   run a control, refresh or remove
//	DELETE /devices/{id}           stop tracking a device
//	GET    /scan                   stats of the last sweep
//	POST   /scan                   start a sweep
//	POST   /auth/ws-ticket         single-use WebSocket ticket
//	GET    /ws                     event stream
//
// # Security
//
// When security.jwt.secret is set, every route except /health requires an
// HS256 bearer token (see IssueToken) and WebSocket connections need a
// ticket. With no secret the API is open, which suits an isolated LAN.
//
// # Events
//
// The server subscribes to bridge state and health topics on MQTT and
// relays them to WebSocket clients subscribed to the "device.state_changed"
// and "bridge.health" channels.
package api
