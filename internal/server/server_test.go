package server

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/jpalmerr/trackboard/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore(views ...string) *store.MemoryStore {
	st := store.NewMemoryStore()
	for _, v := range views {
		st.Update(store.Snapshot{View: v, State: "waiting", UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	}
	return st
}

func parseSSEEvents(body string) []store.Snapshot {
	var out []store.Snapshot
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var s store.Snapshot
		if err := json.Unmarshal([]byte(data), &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func TestHandleSSE_SendsStoredSnapshots(t *testing.T) {
	srv := NewServer(seededStore("dashboard", "locations"), 0, nil, "", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 2 || events[0].View != "dashboard" || events[1].View != "locations" {
		t.Errorf("events = %+v", events)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	st := store.NewMemoryStore()
	srv := NewServer(st, 0, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for st.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	errMsg := "network down"
	st.Update(store.Snapshot{View: "locations", Error: &errMsg})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 1 || events[0].Error == nil || *events[0].Error != "network down" {
		t.Errorf("events = %+v", events)
	}
	if st.Subscribers() != 0 {
		t.Error("handler did not unsubscribe")
	}
}

func TestHandleSSE_ServerShutdown(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, "", testLogger())

	// request contexts derive from the server context via BaseContext
	serverCtx, serverCancel := context.WithCancel(context.Background())

	const clients = 10
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv := NewServer(seededStore("dashboard"), 0, nil, "", testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)
	if after := runtime.NumGoroutine(); after > before+2 {
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
}

func (n *nonFlushWriter) Header() http.Header         { return n.header }
func (n *nonFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (n *nonFlushWriter) WriteHeader(statusCode int)  { n.statusCode = statusCode }

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, "", testLogger())
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.statusCode)
	}
}

func TestHandleSSE_ThroughRouter(t *testing.T) {
	rec := &recordingMetrics{}
	srv := NewServer(seededStore("dashboard"), 0, nil, "", testLogger(), WithMetrics(rec))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/sse", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/sse: %v", err)
	}

	for key, want := range map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Access-Control-Allow-Origin": "*",
	} {
		if got := resp.Header.Get(key); got != want {
			t.Errorf("header %s = %q, want %q", key, got, want)
		}
	}

	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), `"view":"dashboard"`) {
		t.Errorf("first event = %q", buf[:n])
	}
	if rec.connected.Load() != 1 {
		t.Errorf("SSE clients = %d, want 1", rec.connected.Load())
	}
	_ = resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for rec.connected.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.connected.Load() != 0 {
		t.Error("SSE client not released after disconnect")
	}
}

func TestHandleSnapshots(t *testing.T) {
	srv := NewServer(seededStore("locations", "dashboard"), 0, nil, "", testLogger())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var all []store.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 || all[0].View != "dashboard" {
		t.Errorf("snapshots = %+v", all)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/locations", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"view":"locations"`) {
		t.Errorf("GET one = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/alerts", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown view status = %d, want 404", rec.Code)
	}
}

func TestControlRoutes_NotMountedWithoutControls(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, "", testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/views/dashboard/refetch", nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want route missing", rec.Code)
	}
}

// --- Start ---

func TestStart_AvailablePort(t *testing.T) {
	srv := NewServer(seededStore("dashboard"), 0, nil, "", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	port := srv.Addr().(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/snapshots", port))
	if err != nil {
		t.Fatalf("GET /api/snapshots: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	srv := NewServer(store.NewMemoryStore(), ln.Addr().(*net.TCPAddr).Port, nil, "", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("Start() error = %v, want bind error", err)
	}
}

func TestStart_InvalidPort(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), -1, nil, "", testLogger())
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}

// --- Dashboard page ---

type mockFS struct {
	content string
}

func (m *mockFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func (m *mockFS) ReadFile(name string) ([]byte, error) {
	if name == "assets/index.html" {
		return []byte(m.content), nil
	}
	return nil, fs.ErrNotExist
}

func TestHandleDashboard_Title(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"custom", "Courier Tracking", "<title>Courier Tracking</title><h1>Courier Tracking</h1>"},
		{"default", "", "<title>Trackboard</title><h1>Trackboard</h1>"},
		{"escaped", "<script>alert('x')</script>", "&lt;script&gt;"},
		{"ampersand", "Fleet & Couriers", "Fleet &amp; Couriers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assets := &mockFS{content: "<title>{{.Title}}</title><h1>{{.Title}}</h1>"}
			srv := NewServer(store.NewMemoryStore(), 0, assets, tt.title, testLogger())

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			body := rec.Body.String()
			if !strings.Contains(body, tt.want) {
				t.Errorf("body = %q, want it to contain %q", body, tt.want)
			}
			if strings.Contains(body, "<script>") {
				t.Error("title must be HTML-escaped")
			}
		})
	}
}

func TestHandleDashboard_MissingAssets(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, "", testLogger())
	rec := httptest.NewRecorder()
	srv.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	srv = NewServer(store.NewMemoryStore(), 0, &mockFS{}, "", testLogger())
	rec = httptest.NewRecorder()
	srv.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-root status = %d, want 404", rec.Code)
	}
}

func BenchmarkHandleSSE_SingleClient(b *testing.B) {
	st := store.NewMemoryStore()
	for i := 0; i < 10; i++ {
		st.Update(store.Snapshot{View: "view-" + string(rune('a'+i))})
	}
	srv := NewServer(st, 0, nil, "", testLogger())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
		srv.handleSSE(httptest.NewRecorder(), req)
		cancel()
	}
}

type recordingMetrics struct {
	connected atomic.Int32
}

func (m *recordingMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "trackboard_sse_clients 0\n")
	})
}

func (m *recordingMetrics) SSEConnected()    { m.connected.Add(1) }
func (m *recordingMetrics) SSEDisconnected() { m.connected.Add(-1) }
