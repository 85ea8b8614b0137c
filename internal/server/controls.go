package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/jpalmerr/trackboard/internal/api"
	"github.com/jpalmerr/trackboard/internal/poller"
)

var (
	// ErrUnknownView is returned by controls for a view name that does not exist.
	ErrUnknownView = errors.New("unknown view")

	// ErrInvalidInput marks control errors caused by bad caller input.
	ErrInvalidInput = errors.New("invalid input")
)

// maxFilterBody caps the filter request body.
const maxFilterBody = 64 << 10

func (s *Server) handleRefetch(w http.ResponseWriter, r *http.Request) {
	view := chi.URLParam(r, "view")
	if err := s.controls.Refetch(r.Context(), view); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := chi.URLParam(r, "view")
		if err := s.controls.SetViewEnabled(view, enabled); err != nil {
			s.writeControlError(w, err)
			return
		}
		s.logger.Info("view polling toggled", "view", view, "enabled", enabled)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var f api.LocationsQuery
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}

	if err := s.controls.SetLocationsFilter(r.Context(), f); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.controls.DeleteLocation(r.Context(), id); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(api.ExportCSV)
	}
	format, err := api.ParseExportFormat(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// buffer so a failed export can still answer with an error status
	var buf bytes.Buffer
	if _, err := s.controls.Export(r.Context(), format, &buf); err != nil {
		s.writeControlError(w, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == api.ExportJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", api.ExportFilename(format, time.Now())))
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("export write failed", "error", err)
	}
}

// writeControlError maps a control error to a status code.
func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, ErrUnknownView), api.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case api.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case errors.Is(err, api.ErrBackendUnavailable), errors.Is(err, poller.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Warn("control request failed", "status", status, "error", err)
	}
	s.writeError(w, status, err.Error())
}
