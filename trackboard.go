package trackboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/trackboard/dashboard"
	"github.com/jpalmerr/trackboard/internal/api"
	"github.com/jpalmerr/trackboard/internal/metrics"
	"github.com/jpalmerr/trackboard/internal/poller"
	"github.com/jpalmerr/trackboard/internal/server"
	"github.com/jpalmerr/trackboard/internal/store"
)

const (
	defaultPort    = 8080
	reloginTimeout = 30 * time.Second
)

// ErrAlreadyRunning is returned by [Board.Start] while another Start call on
// the same board has not returned yet.
var ErrAlreadyRunning = errors.New("board is already running")

// Board polls the tracking backend and serves a live dashboard of the
// results.
//
// A Board owns one polling controller per view ([ViewDashboard] and
// [ViewLocations]), publishes every change to the HTTP API, the SSE stream
// and the update callbacks, and exposes controls to refetch, pause, filter,
// delete and export. It is created using [New] with functional options and
// started with [Board.Start].
//
// The typical lifecycle is:
//
//	b, err := trackboard.New(
//	    trackboard.WithBackend("https://tracker.example.com/api"),
//	    trackboard.WithCredentials(email, password),
//	)
//	if err != nil {
//	    slog.Error("failed to create trackboard", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Board struct {
	title           string
	port            int
	backendURL      string
	email           string
	password        string
	allowedOrigins  []string
	logger          *slog.Logger
	updateCallbacks []func(Update)
	now             func() time.Time

	client    *api.Client
	metrics   *metrics.Recorder // nil when disabled
	dashboard *poller.Controller[DashboardData]
	locations *poller.Controller[LocationsData]

	mu      sync.Mutex
	filter  LocationsFilter
	running bool

	reloginActive atomic.Bool
	runCtx        atomic.Pointer[context.Context]
}

// New creates a new [Board] with the given options.
//
// [WithBackend] is required. Other options have sensible defaults:
//   - Polling interval: 5 seconds for both views
//   - Locations filter: page 1, 10 per page
//   - Port: 8080
//   - Metrics: enabled
//
// Returns an error if the backend URL is missing or any option is invalid.
func New(opts ...Option) (*Board, error) {
	cfg := &boardConfig{
		port:            defaultPort,
		pollingInterval: poller.DefaultInterval,
		metrics:         true,
		locationsFilter: normalizeFilter(LocationsFilter{}),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.backendURL == "" {
		return nil, errors.New("backend URL is required")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Board{
		title:           cfg.title,
		port:            cfg.port,
		backendURL:      cfg.backendURL,
		email:           cfg.email,
		password:        cfg.password,
		allowedOrigins:  cfg.allowedOrigins,
		logger:          logger,
		updateCallbacks: cfg.updateCallbacks,
		now:             time.Now,
		filter:          cfg.locationsFilter,
	}

	clientOpts := cfg.clientOptions(logger)
	clientOpts = append(clientOpts, api.WithAuthLostHandler(b.onAuthLost))
	if cfg.metrics {
		b.metrics = metrics.New()
		clientOpts = append(clientOpts, api.WithRequestObserver(b.metrics))
	}

	client, err := api.New(cfg.backendURL, clientOpts...)
	if err != nil {
		return nil, err
	}
	b.client = client

	b.dashboard, err = newView(b, ViewDashboard, b.fetchDashboard, cfg.dashboard, cfg.pollingInterval)
	if err != nil {
		return nil, err
	}
	b.locations, err = newView(b, ViewLocations, b.locationsFetcher(cfg.locationsFilter), cfg.locations, cfg.pollingInterval)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// Start logs in if needed, begins polling every enabled view and serves the
// dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Each enabled view is fetched immediately, then interval after each fetch settles
//   - The HTTP server starts on the configured port
//   - Every view change reaches the store, the SSE clients and the update callbacks
//   - The dashboard is available at http://localhost:<port>
//
// Returns nil on graceful shutdown. Returns an error if login with the
// configured credentials fails or the HTTP server fails to start. A board can
// be started again after Start returns.
func (b *Board) Start(ctx context.Context) error {
	b.logger.Info("trackboard starting", "backend", b.backendURL)
	b.logger.Info("polling configured",
		"dashboard_interval", b.dashboard.Interval().String(),
		"locations_interval", b.locations.Interval().String(),
	)
	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", b.port))

	return b.run(ctx, func(runCtx context.Context, snapshots store.Store) error {
		srvOpts := []server.Option{server.WithControls(b)}
		if b.metrics != nil {
			srvOpts = append(srvOpts, server.WithMetrics(b.metrics))
		}
		if len(b.allowedOrigins) > 0 {
			srvOpts = append(srvOpts, server.WithAllowedOrigins(b.allowedOrigins...))
		}

		httpServer := server.NewServer(snapshots, b.port, dashboard.Assets, b.title, b.logger, srvOpts...)
		if err := httpServer.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})
}

// Watch is Start without the HTTP server: it logs in if needed and polls
// every enabled view until ctx is cancelled, delivering changes to the
// update callbacks only.
func (b *Board) Watch(ctx context.Context) error {
	b.logger.Info("trackboard watching", "backend", b.backendURL)
	return b.run(ctx, nil)
}

// run owns one polling session. serve, when non-nil, is called once polling
// has started; an error from it ends the session.
func (b *Board) run(ctx context.Context, serve func(context.Context, store.Store) error) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	if err := b.ensureSession(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.runCtx.Store(&runCtx)

	snapshots := store.NewMemoryStore()

	// forwarders subscribe before polling starts so no change is missed
	var forwarders sync.WaitGroup
	unsubscribe := []func(){
		forward(b, snapshots, ViewDashboard, b.dashboard, &forwarders),
		forward(b, snapshots, ViewLocations, b.locations, &forwarders),
	}

	var runners sync.WaitGroup
	for _, run := range []func(context.Context) error{b.dashboard.Run, b.locations.Run} {
		runners.Add(1)
		go func() {
			defer runners.Done()
			if err := run(runCtx); err != nil {
				b.logger.Error("view stopped with error", "error", err)
			}
		}()
	}

	// cleanup stops polling first, then drains the forwarders
	cleanup := func() {
		cancel()
		runners.Wait()
		for _, stop := range unsubscribe {
			stop()
		}
		forwarders.Wait()
	}

	if serve != nil {
		if err := serve(runCtx, snapshots); err != nil {
			cleanup()
			return err
		}
	}

	<-ctx.Done()
	cleanup()
	b.logger.Info("trackboard stopped")
	return nil
}

// ensureSession logs in with the configured credentials unless a stored
// session exists.
func (b *Board) ensureSession(ctx context.Context) error {
	if b.client.Authenticated() {
		b.logger.Debug("using stored session")
		return nil
	}
	if b.email == "" {
		b.logger.Warn("no stored session and no credentials configured, backend requests will fail until login")
		return nil
	}
	if _, err := b.client.Login(ctx, b.email, b.password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	b.logger.Info("logged in", "email", b.email)
	return nil
}

// onAuthLost runs when the backend session cannot be recovered by a token
// refresh. With credentials configured the board logs in again in the
// background; the next poll cycle picks up the new session.
func (b *Board) onAuthLost() {
	if b.email == "" {
		b.logger.Warn("session lost, login required")
		return
	}
	if !b.reloginActive.CompareAndSwap(false, true) {
		return
	}

	parent := context.Background()
	if p := b.runCtx.Load(); p != nil {
		parent = *p
	}

	go func() {
		defer b.reloginActive.Store(false)
		ctx, cancel := context.WithTimeout(parent, reloginTimeout)
		defer cancel()

		if _, err := b.client.Login(ctx, b.email, b.password); err != nil {
			b.logger.Error("re-login after session loss failed", "error", err)
			return
		}
		b.logger.Info("logged in again after session loss", "email", b.email)
	}()
}

// Port returns the configured HTTP port for the dashboard server.
func (b *Board) Port() int {
	return b.port
}

// Title returns the configured dashboard title.
func (b *Board) Title() string {
	return b.title
}
