// Package poller implements the short-polling controller used by every live
// view of the trackboard dashboard.
//
// A [Controller] repeatedly runs a caller-supplied fetch function and keeps
// the outcome of the latest cycle: the last accepted value, the last error and
// a loading flag that is only true until the first cycle settles. Cycles are
// strictly sequential: the next one is scheduled only after the previous one
// has finished, so the effective period is interval + fetch latency.
//
// The controller is a small state machine:
//
//	Idle ──Start──▶ Fetching ──settled──▶ Waiting ──timer──▶ Fetching ...
//	                   │                     │
//	                   └────────Stop─────────┴──▶ Stopped ──Start──▶ Fetching
//
// Stop cancels the armed timer but never aborts a fetch that is already in
// flight; such a fetch still applies its result and is simply not
// rescheduled. Configuration (fetch function, interval, comparator) is read at
// the start of every cycle, so changes take effect on the next cycle.
//
// Consumers observe the controller through [Controller.Subscribe], which
// delivers [Snapshot] values with latest-wins semantics. Timing goes through
// the [Clock] interface so tests can drive the schedule deterministically.
//
// Users of the trackboard library should not need to interact with this
// package directly. Views are configured through the main trackboard package.
package poller
