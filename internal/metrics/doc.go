// Package metrics records trackboard's Prometheus metrics.
//
// A [Recorder] owns its own registry, so several boards in one process (or
// in one test binary) never collide on metric names. It satisfies the
// observer interfaces of the poller and api packages and is served by the
// HTTP server at /metrics.
//
// Metrics:
//
//	trackboard_poll_cycles_total{view,result}
//	trackboard_poll_cycle_duration_seconds{view}
//	trackboard_backend_requests_total{method,route,status}
//	trackboard_backend_request_duration_seconds{method,route}
//	trackboard_token_refreshes_total{result}
//	trackboard_backend_breaker_state
//	trackboard_sse_clients
package metrics
