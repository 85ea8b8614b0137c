// Package trackboard provides an embeddable live dashboard for a location
// tracking backend.
//
// A [Board] logs in to the backend's REST API, polls two views on their own
// schedules and publishes every change to a web page, a JSON API, a
// Server-Sent Events stream and Go callbacks. Polling uses completion-to-start
// cadence: the next fetch is scheduled only after the previous one settles,
// so a slow backend is never hit by overlapping cycles.
//
// # Quick Start
//
//	b, _ := trackboard.New(
//	    trackboard.WithBackend("https://tracker.example.com/api"),
//	    trackboard.WithCredentials("admin@example.com", "secret"),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until context is cancelled
//
// [Board.Watch] runs the same polling session without the HTTP server, for
// callers that only consume updates through [WithUpdateCallback].
//
// # Views
//
//   - [ViewDashboard]: headline stats, the ten latest locations and a
//     seven-day activity chart, fetched in parallel
//   - [ViewLocations]: one page of the filtered location listing plus every
//     matching location for a map, fetched in parallel
//
// Each view keeps its last good value when a fetch fails and reports the
// error alongside it. A result equal to the previous one is not published.
//
// # Configuration
//
// Trackboard uses the functional options pattern for configuration:
//
//	b, err := trackboard.New(
//	    trackboard.WithBackend(url),
//	    trackboard.WithTokenFile("/var/lib/trackboard/tokens.yaml"),
//	    trackboard.WithPollingInterval(10 * time.Second),
//	    trackboard.WithDashboard(trackboard.WithInterval(time.Minute)),
//	    trackboard.WithLocations(trackboard.LocationsFilter{UserID: "42"}, trackboard.WithDisabled()),
//	    trackboard.WithPort(9090),
//	)
//
// # Controls
//
// While running, a board can be steered from Go or over HTTP: [Board.Refetch],
// [Board.SetViewEnabled], [Board.SetLocationsFilter], [Board.DeleteLocation]
// and [Board.Export].
//
// # Architecture
//
// Trackboard consists of several internal packages (under internal/):
//
//   - internal/poller: Generic polling controller with an explicit state machine
//   - internal/api: Backend REST client with token refresh, rate limiting and a circuit breaker
//   - internal/store: In-memory snapshot storage with pub/sub for real-time updates
//   - internal/server: HTTP server with REST API, controls and Server-Sent Events
//   - internal/metrics: Prometheus instrumentation
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package trackboard
