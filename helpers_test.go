package trackboard

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jpalmerr/trackboard/internal/mockbackend"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "secret"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMockBackend starts a fake backend with one known user.
func newMockBackend(t *testing.T, opts ...mockbackend.Option) (*mockbackend.Backend, string) {
	t.Helper()
	opts = append([]mockbackend.Option{mockbackend.WithUser(testEmail, testPassword)}, opts...)
	backend := mockbackend.New(opts...)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv.URL + "/api"
}

// newTestBoard creates a board against baseURL with test-friendly defaults.
func newTestBoard(t *testing.T, baseURL string, opts ...Option) *Board {
	t.Helper()
	opts = append([]Option{
		WithBackend(baseURL),
		WithCredentials(testEmail, testPassword),
		WithDeviceID("test-device"),
		WithLogger(testLogger()),
	}, opts...)
	b, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

// loggedInBoard creates a board and logs it in without starting it.
func loggedInBoard(t *testing.T, baseURL string, opts ...Option) *Board {
	t.Helper()
	b := newTestBoard(t, baseURL, opts...)
	if err := b.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return b
}

func sampleLocations(now time.Time) []mockbackend.Location {
	return []mockbackend.Location{
		{ID: "l1", UserID: "u1", FullName: "Anna Petrova", Latitude: 55.75, Longitude: 37.61, Timestamp: now.Add(-time.Hour)},
		{ID: "l2", UserID: "u1", FullName: "Anna Petrova", Latitude: 55.76, Longitude: 37.62, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "l3", UserID: "u2", FullName: "Boris Ivanov", Latitude: 59.93, Longitude: 30.33, Timestamp: now.Add(-30 * time.Hour)},
		{ID: "l4", UserID: "u3", FullName: "Vera Smirnova", Latitude: 56.83, Longitude: 60.60, Timestamp: now.Add(-72 * time.Hour)},
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
