package config

import (
	"log/slog"

	"github.com/jpalmerr/trackboard"
)

// BuildOptions converts parsed configuration into SDK options for
// [trackboard.New]. The logger is passed through when non-nil.
func BuildOptions(cfg *Config, logger *slog.Logger) []trackboard.Option {
	opts := []trackboard.Option{
		trackboard.WithBackend(cfg.Backend.URL),
		trackboard.WithPort(cfg.Port),
		trackboard.WithPollingInterval(cfg.PollInterval.Duration()),
		trackboard.WithMetrics(cfg.MetricsEnabled()),
		trackboard.WithDashboard(viewOptions(cfg.Views.Dashboard)...),
		trackboard.WithLocations(cfg.Views.Locations.Filter.LocationsFilter(), viewOptions(cfg.Views.Locations.ViewConfig)...),
	}

	if cfg.Title != "" {
		opts = append(opts, trackboard.WithTitle(cfg.Title))
	}
	if logger != nil {
		opts = append(opts, trackboard.WithLogger(logger))
	}

	if cfg.Backend.Timeout != 0 {
		opts = append(opts, trackboard.WithRequestTimeout(cfg.Backend.Timeout.Duration()))
	}
	if cfg.Backend.RateLimit > 0 {
		opts = append(opts, trackboard.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst))
	}
	if cfg.Backend.DeviceID != "" {
		opts = append(opts, trackboard.WithDeviceID(cfg.Backend.DeviceID))
	}

	if cfg.Auth.Email != "" {
		opts = append(opts, trackboard.WithCredentials(cfg.Auth.Email, cfg.Auth.Password))
	}
	if cfg.Auth.TokenFile != "" {
		opts = append(opts, trackboard.WithTokenFile(cfg.Auth.TokenFile))
	}

	if len(cfg.AllowedOrigins) > 0 {
		opts = append(opts, trackboard.WithAllowedOrigins(cfg.AllowedOrigins...))
	}

	return opts
}

// viewOptions converts a view's schedule settings.
func viewOptions(vc ViewConfig) []trackboard.ViewOption {
	var opts []trackboard.ViewOption
	if vc.Interval != 0 {
		opts = append(opts, trackboard.WithInterval(vc.Interval.Duration()))
	}
	if vc.Enabled != nil && !*vc.Enabled {
		opts = append(opts, trackboard.WithDisabled())
	}
	return opts
}
