package trackboard

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/trackboard/internal/mockbackend"
)

// updateRecorder collects updates from a callback.
type updateRecorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *updateRecorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *updateRecorder) snapshot() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func (r *updateRecorder) find(match func(Update) bool) (Update, bool) {
	for _, u := range r.snapshot() {
		if match(u) {
			return u, true
		}
	}
	return Update{}, false
}

// waitForData waits until every view has delivered data.
func (r *updateRecorder) waitForData(t *testing.T, timeout time.Duration) bool {
	t.Helper()
	return waitFor(t, timeout, func() bool {
		for _, view := range Views {
			if _, ok := r.find(func(u Update) bool { return u.View == view && u.Data != nil }); !ok {
				return false
			}
		}
		return true
	})
}

func (r *updateRecorder) count(view string) int {
	n := 0
	for _, u := range r.snapshot() {
		if u.View == view {
			n++
		}
	}
	return n
}

func TestWithUpdateCallback_ReceivesViewData(t *testing.T) {
	_, baseURL := newMockBackend(t, mockbackend.WithLocations(sampleLocations(time.Now())...))
	var rec updateRecorder
	b := newTestBoard(t, baseURL,
		WithPort(19320),
		WithPollingInterval(50*time.Millisecond),
		WithUpdateCallback(rec.record),
	)
	stop := runBoard(t, b)

	if !rec.waitForData(t, 3*time.Second) {
		t.Fatalf("callbacks never saw both views: %+v", rec.snapshot())
	}
	if err := stop(); err != nil {
		t.Errorf("Start() returned error: %v", err)
	}

	updates := rec.snapshot()
	first := map[string]Update{}
	for _, u := range updates {
		if _, seen := first[u.View]; !seen {
			first[u.View] = u
		}
	}
	for _, view := range Views {
		u := first[view]
		if !u.Loading || u.Data != nil {
			t.Errorf("first %s update = %+v, want loading without data", view, u)
		}
	}

	u, _ := rec.find(func(u Update) bool { return u.View == ViewLocations && u.Data != nil })
	data, ok := u.Data.(LocationsData)
	if !ok {
		t.Fatalf("locations Data is %T", u.Data)
	}
	if data.Total != 4 || u.Loading || u.Err != nil || u.At.IsZero() {
		t.Errorf("locations update = %+v", u)
	}
}

// TestWithUpdateCallback_UnchangedDataNotRepeated verifies that a refetch
// returning equal data does not produce a new data update.
func TestWithUpdateCallback_UnchangedDataNotRepeated(t *testing.T) {
	_, baseURL := newMockBackend(t, mockbackend.WithLocations(sampleLocations(time.Now())...))
	var rec updateRecorder
	b := newTestBoard(t, baseURL,
		WithPort(19321),
		WithPollingInterval(time.Hour),
		WithUpdateCallback(rec.record),
	)
	stop := runBoard(t, b)
	defer func() { _ = stop() }()

	if !rec.waitForData(t, 3*time.Second) {
		t.Fatal("views never published")
	}
	// let the first cycle settle into waiting
	time.Sleep(100 * time.Millisecond)
	before := rec.count(ViewLocations)

	if err := b.Refetch(context.Background(), ViewLocations); err != nil {
		t.Fatalf("Refetch() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if after := rec.count(ViewLocations); after != before {
		t.Errorf("updates grew from %d to %d on an unchanged refetch", before, after)
	}
}

func TestWithUpdateCallback_ReportsErrors(t *testing.T) {
	backend, baseURL := newMockBackend(t, mockbackend.WithLocations(sampleLocations(time.Now())...))
	var rec updateRecorder
	b := newTestBoard(t, baseURL,
		WithPort(19322),
		WithPollingInterval(time.Hour),
		WithUpdateCallback(rec.record),
	)
	stop := runBoard(t, b)
	defer func() { _ = stop() }()

	if !rec.waitForData(t, 3*time.Second) {
		t.Fatal("views never published")
	}
	// let the first cycles settle so no other fetch consumes the failures
	time.Sleep(100 * time.Millisecond)

	backend.FailNext(2, http.StatusInternalServerError)
	_ = b.Refetch(context.Background(), ViewLocations)

	if !waitFor(t, 2*time.Second, func() bool {
		_, ok := rec.find(func(u Update) bool { return u.View == ViewLocations && u.Err != nil })
		return ok
	}) {
		t.Fatal("no error update delivered")
	}
	u, _ := rec.find(func(u Update) bool { return u.View == ViewLocations && u.Err != nil })
	if _, ok := u.Data.(LocationsData); !ok {
		t.Errorf("error update Data = %T, want last good LocationsData", u.Data)
	}
}

func TestWithUpdateCallback_PanicRecovery(t *testing.T) {
	_, baseURL := newMockBackend(t)

	var normalCalled atomic.Bool
	var logBuf syncBuffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	b, err := New(
		WithBackend(baseURL),
		WithCredentials(testEmail, testPassword),
		WithDeviceID("test-device"),
		WithUpdateCallback(func(Update) { panic("intentional test panic") }),
		WithUpdateCallback(func(Update) { normalCalled.Store(true) }),
		WithLogger(logger),
		WithPollingInterval(50*time.Millisecond),
		WithPort(19323),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := b.Start(ctx); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
	if !normalCalled.Load() {
		t.Error("subsequent callbacks should still run after panic")
	}
	if out := logBuf.String(); !strings.Contains(out, "update callback panicked") || !strings.Contains(out, "correlation_id") {
		t.Error("panic should have been logged with a correlation id")
	}
}

func TestWithUpdateCallback_NilIsSafe(t *testing.T) {
	b, err := New(WithBackend(testBackendURL), WithUpdateCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(b.updateCallbacks) != 0 {
		t.Errorf("registered %d callbacks, want 0", len(b.updateCallbacks))
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
