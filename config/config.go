// Package config provides YAML configuration parsing for Trackboard.
//
// This package enables running Trackboard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Courier Fleet
//	port: 8080
//	poll_interval: 5s
//
//	backend:
//	  url: ${TRACKER_API_URL}
//	  timeout: 10s
//
//	auth:
//	  email: ${TRACKER_EMAIL}
//	  password: ${TRACKER_PASSWORD}
//	  token_file: ${HOME}/.trackboard/tokens.yaml
//
//	views:
//	  dashboard:
//	    interval: 30s
//	  locations:
//	    filter:
//	      user_id: "42"
//	      limit: 20
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/trackboard"
)

const (
	defaultPort         = 8080
	defaultPollInterval = 5 * time.Second

	// minPollInterval is the minimum allowed polling interval for production configs.
	// This prevents accidental DoS of the backend with overly aggressive polling.
	minPollInterval = 1 * time.Second
	maxPollInterval = 1 * time.Hour
)

// Config is the root configuration structure for Trackboard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Trackboard" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the default time between fetches of a view.
	// Accepts duration strings like "10s", "1m", "500ms".
	// Defaults to 5s.
	PollInterval Duration `yaml:"poll_interval"`

	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	Views   ViewsConfig   `yaml:"views"`

	// Metrics enables the /metrics endpoint. Defaults to true.
	Metrics *bool `yaml:"metrics"`

	// AllowedOrigins restricts cross-origin browser access to the API.
	// Defaults to any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// BackendConfig locates the tracking backend.
type BackendConfig struct {
	// URL is the REST API base URL including its path prefix.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Timeout bounds each backend request. Defaults to 30s.
	Timeout Duration `yaml:"timeout"`

	// RateLimit caps requests per second. Defaults to 20.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the rate limiter burst. Defaults to the rate limit, at least 1.
	Burst int `yaml:"burst"`

	// DeviceID overrides the device fingerprint sent on login.
	DeviceID string `yaml:"device_id"`
}

// AuthConfig holds the login credentials and where the session is kept.
// All values support environment variable substitution.
type AuthConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// TokenFile persists session tokens across restarts.
	TokenFile string `yaml:"token_file"`
}

// ViewsConfig configures each view.
type ViewsConfig struct {
	Dashboard ViewConfig          `yaml:"dashboard"`
	Locations LocationsViewConfig `yaml:"locations"`
}

// ViewConfig configures the schedule of one view.
type ViewConfig struct {
	// Interval overrides poll_interval for this view. Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`

	// Enabled starts the view polling. Defaults to true; a disabled view is
	// fetched on demand only.
	Enabled *bool `yaml:"enabled"`
}

// LocationsViewConfig configures the locations view and its initial filter.
type LocationsViewConfig struct {
	ViewConfig `yaml:",inline"`

	Filter FilterConfig `yaml:"filter"`
}

// FilterConfig is the initial locations filter.
type FilterConfig struct {
	UserID    string `yaml:"user_id"`
	FullName  string `yaml:"full_name"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Limit     int    `yaml:"limit"`
	Sort      string `yaml:"sort"`
	Order     string `yaml:"order"`
}

// LocationsFilter converts the filter to its SDK form.
func (f FilterConfig) LocationsFilter() trackboard.LocationsFilter {
	return trackboard.LocationsFilter{
		UserID:    f.UserID,
		FullName:  f.FullName,
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
		Limit:     f.Limit,
		Sort:      f.Sort,
		Order:     f.Order,
	}
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the backend URL, device id and the
// auth section. Defaults are applied for Port (8080) and PollInterval (5s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MetricsEnabled reports whether the /metrics endpoint is on.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics == nil || *c.Metrics
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}

	if err := c.Backend.expandAndValidate(); err != nil {
		return err
	}
	if err := c.Auth.expandAndValidate(); err != nil {
		return err
	}

	if err := validateInterval("views.dashboard", c.Views.Dashboard.Interval); err != nil {
		return err
	}
	if err := validateInterval("views.locations", c.Views.Locations.Interval); err != nil {
		return err
	}
	if err := c.Views.Locations.Filter.LocationsFilter().Validate(); err != nil {
		return fmt.Errorf("views.locations.filter: %w", err)
	}

	for i, origin := range c.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("allowed_origins[%d]: origin cannot be empty", i)
		}
	}

	return nil
}

func (b *BackendConfig) expandAndValidate() error {
	if b.URL == "" {
		return errors.New("backend.url is required")
	}
	expanded, err := expandEnvVars(b.URL)
	if err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	b.URL = expanded

	parsedURL, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("backend.url: invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("backend.url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("backend.url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	if b.Timeout != 0 && b.Timeout.Duration() < time.Second {
		return fmt.Errorf("backend.timeout must be at least 1s if specified, got %s", b.Timeout.Duration())
	}
	if b.RateLimit < 0 {
		return fmt.Errorf("backend.rate_limit cannot be negative, got %v", b.RateLimit)
	}
	if b.Burst < 0 {
		return fmt.Errorf("backend.burst cannot be negative, got %d", b.Burst)
	}
	if b.Burst > 0 && b.RateLimit == 0 {
		return errors.New("backend.burst requires backend.rate_limit")
	}
	if b.RateLimit > 0 && b.Burst == 0 {
		b.Burst = max(1, int(b.RateLimit))
	}

	if b.DeviceID, err = expandEnvVars(b.DeviceID); err != nil {
		return fmt.Errorf("backend.device_id: %w", err)
	}
	return nil
}

func (a *AuthConfig) expandAndValidate() error {
	var err error
	if a.Email, err = expandEnvVars(a.Email); err != nil {
		return fmt.Errorf("auth.email: %w", err)
	}
	if a.Password, err = expandEnvVars(a.Password); err != nil {
		return fmt.Errorf("auth.password: %w", err)
	}
	if a.TokenFile, err = expandEnvVars(a.TokenFile); err != nil {
		return fmt.Errorf("auth.token_file: %w", err)
	}

	if (a.Email == "") != (a.Password == "") {
		return errors.New("auth.email and auth.password must be set together")
	}
	return nil
}

func validateInterval(field string, d Duration) error {
	if d == 0 {
		return nil
	}
	if d.Duration() < minPollInterval {
		return fmt.Errorf("%s.interval must be at least %s, got %s", field, minPollInterval, d.Duration())
	}
	if d.Duration() > maxPollInterval {
		return fmt.Errorf("%s.interval must not exceed %s, got %s", field, maxPollInterval, d.Duration())
	}
	return nil
}
