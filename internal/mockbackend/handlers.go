package mockbackend

import (
	"bytes"
	"encoding/csv"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

// MarshalJSON serves the latitude as a decimal string, like the real backend.
func (l Location) MarshalJSON() ([]byte, error) {
	type plain Location
	return json.Marshal(struct {
		plain
		Latitude  string `json:"latitude"`
		Timestamp string `json:"timestamp"`
	}{
		plain:     plain(l),
		Latitude:  strconv.FormatFloat(l.Latitude, 'f', 6, 64),
		Timestamp: l.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (b *Backend) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.counts[r.Method+" "+r.URL.Path]++
		b.mu.Unlock()

		b.logger.Debug("mock backend request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) failInjected(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		fail := b.failures > 0
		status := b.failStatus
		if fail {
			b.failures--
		}
		b.mu.Unlock()

		if fail {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		b.mu.Lock()
		valid := ok && b.validAccess(token)
		b.mu.Unlock()

		if !valid {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	password, ok := b.users[req.Email]
	if !ok || password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	access, refresh, err := b.issueTokens(req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        access,
		"refreshToken": refresh,
		"user": map[string]string{
			"id":    req.Email,
			"email": req.Email,
		},
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email, ok := b.refresh[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	// refresh tokens are single use
	delete(b.refresh, req.RefreshToken)

	access, refresh, err := b.issueTokens(email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":        access,
		"refreshToken": refresh,
	})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	b.revoked[token] = true
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (b *Backend) handleListLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// the listing endpoint does not support ordering
	for _, k := range []string{"sort", "order"} {
		if q.Has(k) {
			writeError(w, http.StatusBadRequest, "property "+k+" should not exist")
			return
		}
	}

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page "+err.Error())
		return
	}
	limit, err := positiveInt(q.Get("limit"), defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit "+err.Error())
		return
	}

	b.mu.Lock()
	matched, err := filter(b.locations, q)
	b.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total := len(matched)
	pages := (total + limit - 1) / limit
	from := min((page-1)*limit, total)
	to := min(from+limit, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"items": matched[from:to],
		"total": total,
		"page":  page,
		"pages": pages,
	})
}

func (b *Backend) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.locations {
		if l.ID == id {
			b.locations = append(b.locations[:i], b.locations[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Location not found")
}

func (b *Backend) handleExport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if format != "csv" && format != "json" {
		writeError(w, http.StatusNotFound, "unsupported export format")
		return
	}

	q := r.URL.Query()
	b.mu.Lock()
	matched, err := filter(b.locations, q)
	b.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orderBy(matched, q.Get("sort"), q.Get("order"))

	if format == "json" {
		writeJSON(w, http.StatusOK, matched)
		return
	}

	var buf bytes.Buffer
	if err := encodeCSV(&buf, matched); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode export")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// encodeCSV writes locations as CSV with a header row.
func encodeCSV(w io.Writer, locs []Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "userId", "fullName", "latitude", "longitude", "timestamp"}); err != nil {
		return err
	}
	for _, l := range locs {
		err := cw.Write([]string{
			l.ID,
			l.UserID,
			l.FullName,
			strconv.FormatFloat(l.Latitude, 'f', 6, 64),
			strconv.FormatFloat(l.Longitude, 'f', 6, 64),
			l.Timestamp.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (b *Backend) handleTracks(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	n, asObject := b.tracks, b.tracksObj
	b.mu.Unlock()

	if asObject {
		writeJSON(w, http.StatusOK, map[string]int{"total": n})
		return
	}
	tracks := make([]map[string]string, n)
	for i := range tracks {
		tracks[i] = map[string]string{"id": "track-" + strconv.Itoa(i+1)}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// orderBy sorts exports; the default is newest first.
func orderBy(locs []Location, field, order string) {
	less := func(i, j int) bool { return locs[i].Timestamp.Before(locs[j].Timestamp) }
	switch field {
	case "fullName":
		less = func(i, j int) bool { return locs[i].FullName < locs[j].FullName }
	case "userId":
		less = func(i, j int) bool { return locs[i].UserID < locs[j].UserID }
	}
	if order == "asc" {
		sort.SliceStable(locs, less)
		return
	}
	sort.SliceStable(locs, func(i, j int) bool { return less(j, i) })
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
	})
}
