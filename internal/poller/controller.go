package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by operations on a closed [Controller].
	ErrClosed = errors.New("poller: controller closed")

	// ErrUnknown replaces fetch failures that did not carry an error value,
	// such as a panic with a string or other non-error payload.
	ErrUnknown = errors.New("Unknown error") //nolint:staticcheck // user-facing message
)

// FetchFunc retrieves one value. It is called once per cycle and for every
// manual refetch.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Comparator reports whether next is equivalent to prev. When it returns
// true the controller keeps prev and does not notify subscribers.
//
// A comparator runs while the controller holds its lock and must not call
// back into the controller.
type Comparator[T any] func(prev, next T) bool

// Snapshot is the observable state of a [Controller] at a point in time.
type Snapshot[T any] struct {
	// Value is the last accepted fetch result. It is the zero value of T
	// until HasValue is true.
	Value T

	// HasValue reports whether any fetch has succeeded yet.
	HasValue bool

	// Err is the error of the most recent settled fetch, or nil if that
	// fetch succeeded.
	Err error

	// Loading is true until the first fetch settles and false forever after.
	Loading bool

	// State is the lifecycle state of the controller.
	State State

	// UpdatedAt is when Value, Err or Loading last changed.
	UpdatedAt time.Time
}

// Controller runs a fetch function on a completion-to-start schedule and
// keeps the latest result.
//
// All methods are safe for concurrent use.
type Controller[T any] struct {
	name    string
	clock   Clock
	logger  *slog.Logger
	metrics CycleObserver

	mu       sync.Mutex
	fetch    FetchFunc[T]
	cmp      Comparator[T]
	interval time.Duration
	enabled  bool
	closed   bool

	state   State
	running bool   // a scheduled fetch is in flight
	seq     uint64 // identifies the armed timer; bumped on every arm and stop
	session uint64 // bumped on every Start
	timer   Timer
	ctx     context.Context
	unwatch func() bool

	value    T
	hasValue bool
	err      error
	loading  bool
	updated  time.Time

	subs map[chan Snapshot[T]]struct{}
}

// New creates a [Controller] for fetch. The controller starts in
// [StateIdle] with Loading set; nothing is fetched until [Controller.Start],
// [Controller.Run] or [Controller.Refetch] is called.
func New[T any](fetch FetchFunc[T], opts ...Option) (*Controller[T], error) {
	if fetch == nil {
		return nil, errors.New("fetch function is required")
	}

	cfg := &settings{
		interval: DefaultInterval,
		enabled:  true,
		clock:    RealClock(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.name != "" {
		logger = logger.With("poller", cfg.name)
	}

	return &Controller[T]{
		name:     cfg.name,
		clock:    cfg.clock,
		logger:   logger,
		metrics:  cfg.metrics,
		fetch:    fetch,
		interval: cfg.interval,
		enabled:  cfg.enabled,
		state:    StateIdle,
		loading:  true,
		subs:     make(map[chan Snapshot[T]]struct{}),
	}, nil
}

// Name returns the label given with [WithName].
func (c *Controller[T]) Name() string {
	return c.name
}

// Start begins polling: one fetch runs immediately and each following fetch
// is scheduled interval after the previous one settles.
//
// Start is a no-op while polling is already active, after [Controller.Close],
// or when ctx is already done. Cancelling ctx stops polling. If ctx is nil,
// context.Background() is used. If a fetch from a previous session is still
// in flight, Start adopts it instead of starting a second one.
func (c *Controller[T]) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("start ignored, controller closed")
		return
	}
	if c.state.Active() {
		c.mu.Unlock()
		c.logger.Debug("polling already active")
		return
	}
	if ctx.Err() != nil {
		c.mu.Unlock()
		c.logger.Debug("start ignored, context already done")
		return
	}

	c.ctx = ctx
	c.session++
	session := c.session
	c.unwatch = context.AfterFunc(ctx, func() { c.halt(session) })
	c.state = StateFetching
	adopt := c.running
	c.running = true
	interval := c.interval
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("polling started", "interval", interval.String(), "adopted_fetch", adopt)

	if !adopt {
		go c.cycle()
	}
}

// Stop halts polling. The armed timer is cancelled; a fetch already in
// flight is not aborted but its completion schedules nothing. Stop is
// idempotent and safe to call before Start.
func (c *Controller[T]) Stop() {
	c.halt(0)
}

// halt stops polling. A non-zero session only stops that session, so a
// context cancelled after a restart cannot stop the newer session.
func (c *Controller[T]) halt(session uint64) {
	c.mu.Lock()
	if !c.state.Active() || (session != 0 && session != c.session) {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("polling stopped")
}

// Refetch runs one fetch now, independently of the schedule, and returns
// once its result has been applied. The armed timer is left untouched.
func (c *Controller[T]) Refetch(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.logger.Debug("manual refetch")
	c.fetchOnce(ctx)
	return nil
}

// Run ties polling to the lifetime of ctx: it starts polling if the
// controller is enabled, blocks until ctx is done and then stops polling.
// Calls to [Controller.SetEnabled] made while Run is blocked reuse ctx.
func (c *Controller[T]) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.ctx = ctx
	enabled := c.enabled
	c.mu.Unlock()

	if enabled {
		c.Start(ctx)
	}

	<-ctx.Done()
	c.Stop()
	return nil
}

// SetEnabled turns polling on or off. Enabling starts polling with the
// context of the last Start or Run; disabling stops it.
func (c *Controller[T]) SetEnabled(enabled bool) {
	c.mu.Lock()
	prev := c.enabled
	c.enabled = enabled
	ctx := c.ctx
	c.mu.Unlock()

	if prev == enabled {
		return
	}
	if enabled {
		c.Start(ctx)
		return
	}
	c.Stop()
}

// Enabled reports whether polling is switched on.
func (c *Controller[T]) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetInterval changes the delay used when the next cycle is armed. A cycle
// that is already armed keeps its delay.
func (c *Controller[T]) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New("polling interval must be positive")
	}
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
	return nil
}

// Interval returns the current delay between cycles.
func (c *Controller[T]) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// SetFetch replaces the fetch function used from the next fetch on.
func (c *Controller[T]) SetFetch(fetch FetchFunc[T]) error {
	if fetch == nil {
		return errors.New("fetch function is required")
	}
	c.mu.Lock()
	c.fetch = fetch
	c.mu.Unlock()
	return nil
}

// SetComparator replaces the comparator. A nil comparator accepts every
// successful result.
func (c *Controller[T]) SetComparator(cmp Comparator[T]) {
	c.mu.Lock()
	c.cmp = cmp
	c.mu.Unlock()
}

// Snapshot returns the current observable state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Value returns the last accepted value and whether there is one.
func (c *Controller[T]) Value() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}

// Err returns the error of the most recent settled fetch.
func (c *Controller[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Loading reports whether the first fetch has yet to settle.
func (c *Controller[T]) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// State returns the current lifecycle state.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel that receives the current snapshot
// immediately and a new one whenever the value, the error, the loading flag
// or the running state changes.
//
// The channel holds at most one pending snapshot. A slow reader skips
// intermediate snapshots and always receives the latest one. The channel is
// closed by [Controller.Unsubscribe] or [Controller.Close].
func (c *Controller[T]) Subscribe() <-chan Snapshot[T] {
	ch := make(chan Snapshot[T], 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.subs[ch] = struct{}{}
	ch <- c.snapshotLocked()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (c *Controller[T]) Unsubscribe(sub <-chan Snapshot[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		if ch == sub {
			delete(c.subs, ch)
			close(ch)
			return
		}
	}
}

// Close stops polling for good and closes every subscription. A fetch in
// flight still completes but nobody is notified.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.state.Active() {
		c.stopLocked()
	}
	c.closed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}

// cycle runs one scheduled fetch and arms the next one.
func (c *Controller[T]) cycle() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	c.fetchOnce(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false

	// stopped while the fetch was in flight
	if c.state != StateFetching {
		return
	}
	if !c.enabled {
		c.stopLocked()
		c.publishLocked()
		c.logger.Info("polling stopped, disabled")
		return
	}

	c.seq++
	seq := c.seq
	c.state = StateWaiting
	c.timer = c.clock.AfterFunc(c.interval, func() { c.fire(seq) })
}

// fire is the timer callback. A timer that was superseded or stopped after
// it began firing is ignored.
func (c *Controller[T]) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.seq || c.state != StateWaiting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateFetching
	c.running = true
	c.mu.Unlock()

	c.cycle()
}

func (c *Controller[T]) stopLocked() {
	c.state = StateStopped
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
}

// fetchOnce runs the current fetch function and applies its outcome.
func (c *Controller[T]) fetchOnce(ctx context.Context) {
	c.mu.Lock()
	fetch := c.fetch
	c.mu.Unlock()

	start := c.clock.Now()
	result, err := c.safeFetch(ctx, fetch)
	if c.metrics != nil {
		c.metrics.ObserveCycle(c.name, c.clock.Now().Sub(start), err)
	}

	// a fetch aborted by its own context says nothing about the backend
	cancelled := err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
	c.apply(result, err, cancelled)
}

// apply records a fetch outcome. A failure keeps the last value; a success
// clears the error and replaces the value unless the comparator says it is
// equivalent. A cancelled fetch only settles the first load.
func (c *Controller[T]) apply(result T, err error, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	if cancelled {
		c.logger.Debug("fetch cancelled, outcome discarded", "error", err)
	} else if err != nil {
		if c.err == nil || c.err.Error() != err.Error() {
			changed = true
		}
		c.err = err
		c.logger.Warn("fetch failed", "error", err)
	} else {
		if c.hasValue && c.safeCompare(c.value, result) {
			c.logger.Debug("result unchanged, update skipped")
		} else {
			c.value = result
			c.hasValue = true
			changed = true
		}
		if c.err != nil {
			c.err = nil
			changed = true
		}
	}
	if c.loading {
		c.loading = false
		changed = true
	}

	if changed {
		c.updated = c.clock.Now()
		c.publishLocked()
	}
}

// safeFetch calls fetch with panic recovery. A panic carrying an error is
// returned as that error; any other payload becomes [ErrUnknown].
func (c *Controller[T]) safeFetch(ctx context.Context, fetch FetchFunc[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()

			c.logger.Error("fetch panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)

			var zero T
			result = zero
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = ErrUnknown
			}
		}
	}()
	return fetch(ctx)
}

// safeCompare treats a panicking comparator as "changed".
func (c *Controller[T]) safeCompare(prev, next T) (same bool) {
	if c.cmp == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("comparator panic", "panic", fmt.Sprintf("%v", r))
			same = false
		}
	}()
	return c.cmp(prev, next)
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Value:     c.value,
		HasValue:  c.hasValue,
		Err:       c.err,
		Loading:   c.loading,
		State:     c.state,
		UpdatedAt: c.updated,
	}
}

// publishLocked hands the current snapshot to every subscriber without
// blocking. A pending snapshot that was not read yet is replaced.
func (c *Controller[T]) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
