// Package server is the HTTP surface of a trackboard Board.
//
// Routes:
//
//   - GET /: the embedded dashboard page
//   - GET /api/snapshots, GET /api/snapshots/{view}: current view snapshots
//   - GET /api/sse: Server-Sent Events stream of snapshot updates
//   - POST /api/views/{view}/refetch|pause|resume: poller controls
//   - PUT /api/locations/filter: replace the locations filter
//   - DELETE /api/locations/{id}: delete a location
//   - GET /api/locations/export?format=csv|json: download an export
//   - GET /metrics: Prometheus metrics
//
// Control routes are mounted only when [WithControls] is given, /metrics
// only with [WithMetrics]. The server shuts down gracefully when the
// context passed to [Server.Start] is cancelled.
package server
