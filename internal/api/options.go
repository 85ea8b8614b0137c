package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// BreakerSettings configures the circuit breaker in front of the backend.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before letting trial
	// requests through.
	OpenTimeout time.Duration

	// Interval resets the failure counts while closed. Zero never resets.
	Interval time.Duration

	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings opens after 5 consecutive failures and lets a trial request through
// after 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		Interval:         time.Minute,
		HalfOpenRequests: 1,
	}
}

type clientConfig struct {
	httpClient  *http.Client
	tokens      TokenStore
	fingerprint *Fingerprinter
	logger      *slog.Logger
	timeout     time.Duration
	refreshSkew time.Duration
	rateLimit   float64
	burst       int
	breaker     BreakerSettings
	observer    RequestObserver
	onAuthLost  func()
}

// Option configures a [Client].
type Option func(*clientConfig) error

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTokenStore sets where access and refresh tokens are kept.
// Defaults to an in-memory store.
func WithTokenStore(s TokenStore) Option {
	return func(c *clientConfig) error {
		if s == nil {
			return errors.New("token store cannot be nil")
		}
		c.tokens = s
		return nil
	}
}

// WithFingerprinter sets the device fingerprint sent on login.
func WithFingerprinter(f *Fingerprinter) Option {
	return func(c *clientConfig) error {
		if f == nil {
			return errors.New("fingerprinter cannot be nil")
		}
		c.fingerprint = f
		return nil
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithRefreshSkew sets how close to its expiry an access token is refreshed
// proactively. Defaults to 30 seconds.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *clientConfig) error {
		if d < 0 {
			return errors.New("refresh skew cannot be negative")
		}
		c.refreshSkew = d
		return nil
	}
}

// WithRateLimit caps outgoing requests at rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) error {
		if rps <= 0 {
			return errors.New("rate limit must be positive")
		}
		if burst < 1 {
			return errors.New("burst must be at least 1")
		}
		c.rateLimit = rps
		c.burst = burst
		return nil
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(s BreakerSettings) Option {
	return func(c *clientConfig) error {
		if s.MaxFailures == 0 {
			return errors.New("breaker max failures must be at least 1")
		}
		if s.OpenTimeout <= 0 {
			return errors.New("breaker open timeout must be positive")
		}
		if s.HalfOpenRequests == 0 {
			s.HalfOpenRequests = 1
		}
		c.breaker = s
		return nil
	}
}

// WithRequestObserver registers a telemetry sink. Nil is ignored.
func WithRequestObserver(o RequestObserver) Option {
	return func(c *clientConfig) error {
		if o != nil {
			c.observer = o
		}
		return nil
	}
}

// WithAuthLostHandler sets a function called whenever the session is lost
// and a fresh login is required.
func WithAuthLostHandler(fn func()) Option {
	return func(c *clientConfig) error {
		c.onAuthLost = fn
		return nil
	}
}
