package trackboard

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpalmerr/trackboard/internal/api"
)

// boardConfig holds mutable state during Board construction.
type boardConfig struct {
	backendURL      string
	email           string
	password        string
	tokenFile       string
	deviceID        string
	title           string
	port            int
	pollingInterval time.Duration
	requestTimeout  time.Duration
	rateLimit       float64
	burst           int
	metrics         bool
	allowedOrigins  []string
	logger          *slog.Logger
	updateCallbacks []func(Update)

	dashboard       viewConfig
	locations       viewConfig
	locationsFilter LocationsFilter
}

// Option is a function that configures a [Board] instance during construction.
//
// Options return an error if validation fails; [New] stops at the first
// failing option.
type Option func(*boardConfig) error

// WithBackend sets the base URL of the tracking backend REST API, including
// its path prefix, e.g. "https://tracker.example.com/api". Required.
func WithBackend(baseURL string) Option {
	return func(cfg *boardConfig) error {
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			return errors.New("backend URL cannot be empty")
		}
		cfg.backendURL = baseURL
		return nil
	}
}

// WithCredentials sets the account used to log in when no stored session
// exists. Without credentials the board relies on a session saved by an
// earlier login (see [WithTokenFile]).
func WithCredentials(email, password string) Option {
	return func(cfg *boardConfig) error {
		if strings.TrimSpace(email) == "" {
			return errors.New("email cannot be empty")
		}
		if password == "" {
			return errors.New("password cannot be empty")
		}
		cfg.email = email
		cfg.password = password
		return nil
	}
}

// WithTokenFile persists the session tokens in a YAML file so they survive
// restarts. Tokens are kept in memory when not set.
func WithTokenFile(path string) Option {
	return func(cfg *boardConfig) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("token file path cannot be empty")
		}
		cfg.tokenFile = path
		return nil
	}
}

// WithDeviceID overrides the device fingerprint sent with every login.
// By default it is derived from the machine id and hostname.
func WithDeviceID(id string) Option {
	return func(cfg *boardConfig) error {
		if strings.TrimSpace(id) == "" {
			return errors.New("device id cannot be empty")
		}
		cfg.deviceID = id
		return nil
	}
}

// WithPollingInterval sets the default delay between the end of one fetch
// and the start of the next, for views without their own [WithInterval].
// Defaults to 5 seconds.
//
// Example:
//
//	b, err := trackboard.New(
//	    trackboard.WithBackend(url),
//	    trackboard.WithPollingInterval(30 * time.Second),
//	)
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *boardConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithDashboard configures the dashboard view.
//
// Example:
//
//	trackboard.WithDashboard(trackboard.WithInterval(time.Minute))
func WithDashboard(opts ...ViewOption) Option {
	return func(cfg *boardConfig) error {
		return cfg.dashboard.apply(ViewDashboard, opts)
	}
}

// WithLocations sets the initial filter of the locations view and
// configures the view. A zero Page becomes 1 and a zero Limit becomes 10.
//
// Example:
//
//	trackboard.WithLocations(trackboard.LocationsFilter{UserID: "42", Limit: 50})
func WithLocations(filter LocationsFilter, opts ...ViewOption) Option {
	return func(cfg *boardConfig) error {
		filter = normalizeFilter(filter)
		if err := filter.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		cfg.locationsFilter = filter
		return cfg.locations.apply(ViewLocations, opts)
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *boardConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "Trackboard".
func WithTitle(title string) Option {
	return func(cfg *boardConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Board and everything it
// owns. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *boardConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithUpdateCallback registers a function called every time a view's
// published state changes.
//
// Multiple callbacks may be registered; they execute in registration order.
// Callbacks for one view run on a single goroutine and must not block.
// Panics within callbacks are recovered and logged.
//
// Example:
//
//	trackboard.WithUpdateCallback(func(u trackboard.Update) {
//	    if u.Err != nil {
//	        log.Printf("%s: %v", u.View, u.Err)
//	    }
//	})
//
// Nil callbacks are silently ignored.
func WithUpdateCallback(cb func(Update)) Option {
	return func(cfg *boardConfig) error {
		if cb == nil {
			return nil
		}
		cfg.updateCallbacks = append(cfg.updateCallbacks, cb)
		return nil
	}
}

// WithRateLimit caps backend requests at rps per second with the given
// burst. Defaults to 20 requests per second, burst 10.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *boardConfig) error {
		if rps <= 0 {
			return errors.New("rate limit must be positive")
		}
		if burst < 1 {
			return errors.New("burst must be at least 1")
		}
		cfg.rateLimit = rps
		cfg.burst = burst
		return nil
	}
}

// WithRequestTimeout bounds every backend request. Defaults to 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *boardConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMetrics turns the Prometheus recorder and the /metrics route on or
// off. Enabled by default.
func WithMetrics(enabled bool) Option {
	return func(cfg *boardConfig) error {
		cfg.metrics = enabled
		return nil
	}
}

// WithAllowedOrigins sets the origins allowed to call the HTTP API from a
// browser. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *boardConfig) error {
		if len(origins) == 0 {
			return errors.New("at least one origin is required")
		}
		cfg.allowedOrigins = origins
		return nil
	}
}

// clientOptions translates the backend settings into api client options.
func (cfg *boardConfig) clientOptions(logger *slog.Logger) []api.Option {
	opts := []api.Option{api.WithLogger(logger)}
	if cfg.tokenFile != "" {
		opts = append(opts, api.WithTokenStore(api.NewFileTokenStore(cfg.tokenFile)))
	}
	if cfg.deviceID != "" {
		opts = append(opts, api.WithFingerprinter(api.StaticFingerprinter(cfg.deviceID)))
	}
	if cfg.requestTimeout > 0 {
		opts = append(opts, api.WithTimeout(cfg.requestTimeout))
	}
	if cfg.rateLimit > 0 {
		opts = append(opts, api.WithRateLimit(cfg.rateLimit, cfg.burst))
	}
	return opts
}
