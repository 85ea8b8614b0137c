package server

import (
	"context"
	"io"
	"net/http"

	"github.com/jpalmerr/trackboard/internal/api"
)

// Controls are the board operations exposed over HTTP.
type Controls interface {
	Refetch(ctx context.Context, view string) error
	SetViewEnabled(view string, enabled bool) error
	SetLocationsFilter(ctx context.Context, f api.LocationsQuery) error
	DeleteLocation(ctx context.Context, id string) error
	Export(ctx context.Context, format api.ExportFormat, w io.Writer) (int64, error)
}

// Metrics serves the metrics endpoint and counts SSE clients.
type Metrics interface {
	Handler() http.Handler
	SSEConnected()
	SSEDisconnected()
}

// Option configures a [Server].
type Option func(*Server)

// WithControls mounts the control routes backed by c.
func WithControls(c Controls) Option {
	return func(s *Server) {
		s.controls = c
	}
}

// WithMetrics mounts /metrics and records SSE clients on m.
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAllowedOrigins sets the CORS origins allowed to call the API.
// Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}
