package poller

import (
	"errors"
	"log/slog"
	"time"
)

// DefaultInterval is the delay between cycles when [WithInterval] is not used.
const DefaultInterval = 5 * time.Second

// CycleObserver receives the outcome of every fetch, scheduled or manual.
type CycleObserver interface {
	ObserveCycle(name string, d time.Duration, err error)
}

// settings holds mutable state during Controller construction.
type settings struct {
	interval time.Duration
	enabled  bool
	clock    Clock
	logger   *slog.Logger
	name     string
	metrics  CycleObserver
}

// Option configures a [Controller] during construction.
type Option func(*settings) error

// WithInterval sets the delay between the end of one fetch and the start of
// the next. Returns an error if d is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(s *settings) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		s.interval = d
		return nil
	}
}

// WithEnabled sets whether [Controller.Run] starts polling right away.
// Defaults to true.
func WithEnabled(enabled bool) Option {
	return func(s *settings) error {
		s.enabled = enabled
		return nil
	}
}

// WithClock replaces the real clock, typically with a fake one in tests.
func WithClock(c Clock) Option {
	return func(s *settings) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		s.clock = c
		return nil
	}
}

// WithLogger sets the logger for lifecycle and fetch events.
// Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithName labels log lines and metrics emitted by the controller.
func WithName(name string) Option {
	return func(s *settings) error {
		s.name = name
		return nil
	}
}

// WithMetrics registers an observer for fetch outcomes. Nil is ignored.
func WithMetrics(m CycleObserver) Option {
	return func(s *settings) error {
		if m != nil {
			s.metrics = m
		}
		return nil
	}
}
