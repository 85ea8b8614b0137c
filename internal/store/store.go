package store

import "time"

// Snapshot is the published state of one view.
//
// Data holds the view's last accepted value and is nil until the first
// successful fetch. Error is set while the last fetch failed.
type Snapshot struct {
	// View is the view name, e.g. "dashboard" or "locations".
	View string `json:"view"`

	Data    any     `json:"data"`
	Error   *string `json:"error"`
	Loading bool    `json:"loading"`

	// State is the poller state: idle, waiting, fetching or stopped.
	State string `json:"state"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store stores view snapshots and publishes every update.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Update stores s, replacing the snapshot of the same view, and notifies
	// subscribers.
	Update(s Snapshot)

	// Get returns the snapshot of one view.
	Get(view string) (Snapshot, bool)

	// GetAll returns every snapshot ordered by view name.
	GetAll() []Snapshot

	// Subscribe returns a channel receiving updates. Slow consumers may miss
	// updates. Call Unsubscribe when done.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes its channel. Safe to call
	// twice.
	Unsubscribe(ch <-chan Snapshot)

	// Subscribers returns the number of live subscriptions.
	Subscribers() int
}
