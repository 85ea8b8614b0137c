// Package mockbackend is an in-memory fake of the location-tracking backend.
//
// It implements the REST surface the trackboard client relies on:
// login/refresh/logout with expiring JWT access tokens, filtered and paged
// location listings, deletion, CSV/JSON export and the track listing. Tests
// use it to exercise the client end to end; the example program uses it as
// a demo backend.
package mockbackend

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL = 15 * time.Minute
	defaultPageSize  = 10
)

// Location is a stored location. Latitude is served as a decimal string and
// longitude as a number, as the real backend does.
type Location struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	FullName     string    `json:"fullName"`
	Latitude     float64   `json:"-"`
	Longitude    float64   `json:"longitude"`
	Timestamp    time.Time `json:"-"`
	BatteryLevel *float64  `json:"battery_level,omitempty"`
	Address      *string   `json:"address,omitempty"`
}

// Backend is the fake server state. All methods are safe for concurrent use.
type Backend struct {
	mu        sync.Mutex
	users     map[string]string // email -> password
	locations []Location
	tracks    int
	tracksObj bool

	secret    []byte
	accessTTL time.Duration
	refresh   map[string]string // refresh token -> email
	revoked   map[string]bool   // access tokens ended by logout

	failures   int
	failStatus int

	counts map[string]int
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a [Backend].
type Option func(*Backend)

// WithUser registers an account that can log in.
func WithUser(email, password string) Option {
	return func(b *Backend) {
		b.users[email] = password
	}
}

// WithLocations seeds the location store.
func WithLocations(locs ...Location) Option {
	return func(b *Backend) {
		b.locations = append(b.locations, locs...)
	}
}

// WithTracks sets the number of tracks reported by /track. When asObject is
// true the count is served as {"total": n} instead of an array.
func WithTracks(n int, asObject bool) Option {
	return func(b *Backend) {
		b.tracks = n
		b.tracksObj = asObject
	}
}

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = d
	}
}

// WithClock replaces time.Now for token expiry and seeding.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// WithLogger sets the logger for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a [Backend].
func New(opts ...Option) *Backend {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)

	b := &Backend{
		users:     make(map[string]string),
		secret:    secret,
		accessTTL: defaultAccessTTL,
		refresh:   make(map[string]string),
		revoked:   make(map[string]bool),
		counts:    make(map[string]int),
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the HTTP API, mounted under /api.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(b.countRequests)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", b.handleLogin)
		r.Post("/auth/refresh", b.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(b.failInjected)
			r.Use(b.requireAuth)

			r.Post("/auth/logout", b.handleLogout)
			r.Get("/locations", b.handleListLocations)
			r.Delete("/locations/{id}", b.handleDeleteLocation)
			r.Get("/locations/export/{format}", b.handleExport)
			r.Get("/track", b.handleTracks)
		})
	})
	return r
}

// Seed adds n random locations spread over the last week for the given
// number of users.
func (b *Backend) Seed(n, users int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if users < 1 {
		users = 1
	}
	now := b.now()
	for i := 0; i < n; i++ {
		u := mrand.IntN(users) + 1
		battery := float64(20 + mrand.IntN(80))
		b.locations = append(b.locations, Location{
			ID:           uuid.NewString(),
			UserID:       fmt.Sprintf("user-%d", u),
			FullName:     fmt.Sprintf("Courier %d", u),
			Latitude:     55.70 + mrand.Float64()*0.1,
			Longitude:    37.55 + mrand.Float64()*0.1,
			Timestamp:    now.Add(-time.Duration(mrand.IntN(7*24*60)) * time.Minute),
			BatteryLevel: &battery,
		})
	}
}

// AddLocation stores a new location and returns its id.
func (b *Backend) AddLocation(loc Location) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = b.now()
	}
	b.locations = append(b.locations, loc)
	return loc.ID
}

// Len returns the number of stored locations.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.locations)
}

// FailNext makes the next n authenticated requests answer with status.
func (b *Backend) FailNext(n, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
	b.failStatus = status
}

// RevokeAccessTokens makes every issued access token invalid, as if they had
// all expired. Refresh tokens stay valid.
func (b *Backend) RevokeAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	// rotating the signing key invalidates every outstanding access token
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	b.secret = secret
}

// RevokeRefreshTokens forgets every refresh token.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = make(map[string]string)
}

// Count returns how many requests hit the given method and path,
// e.g. Count("POST /api/auth/refresh").
func (b *Backend) Count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[route]
}

// issueTokens creates a new access and refresh token pair for email.
func (b *Backend) issueTokens(email string) (access, refresh string, err error) {
	now := b.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(b.accessTTL)),
	}
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}

	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	refresh = hex.EncodeToString(buf)
	b.refresh[refresh] = email
	return access, refresh, nil
}

// validAccess reports whether raw is a live access token.
func (b *Backend) validAccess(raw string) bool {
	if raw == "" || b.revoked[raw] {
		return false
	}
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return b.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
	)
	return err == nil
}

// filter selects locations matching the query string filters.
func filter(locs []Location, q map[string][]string) ([]Location, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var start, end time.Time
	var err error
	if s := get("startDate"); s != "" {
		if start, err = parseTime(s); err != nil {
			return nil, fmt.Errorf("invalid startDate: %w", err)
		}
	}
	if s := get("endDate"); s != "" {
		if end, err = parseTime(s); err != nil {
			return nil, fmt.Errorf("invalid endDate: %w", err)
		}
	}
	userID := get("userId")
	name := strings.ToLower(get("fullName"))

	out := make([]Location, 0, len(locs))
	for _, l := range locs {
		if userID != "" && l.UserID != userID {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(l.FullName), name) {
			continue
		}
		if !start.IsZero() && l.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && l.Timestamp.After(end) {
			continue
		}
		out = append(out, l)
	}

	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func positiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("must be a positive integer")
	}
	return n, nil
}
