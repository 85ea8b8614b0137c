// Package store keeps the latest snapshot of every board view and fans
// changes out to subscribers.
//
// Snapshots are keyed by view name; a new snapshot replaces the previous
// one. Subscribers receive updates on buffered channels with non-blocking
// sends, so a slow subscriber misses updates instead of stalling the
// pollers. The HTTP server streams these updates over SSE.
package store
