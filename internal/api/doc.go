// Package api provides the HTTP API and WebSocket server for Feeder Core.
//
// Two audiences share one router:
//
//   - Feeders poll /feed/check, post to /logs/ingest and pull
//     /api/schedule/{mac}. They are identified by serial and never
//     authenticate.
//   - Operators log in at /auth/login and call the /devices routes with a
//     bearer token. Every device-scoped route loads the device through
//     device.Directory.GetOwned, so a foreign device is a 404.
//
// The server follows the same lifecycle as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
