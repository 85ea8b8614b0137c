package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRefreshSkew = 30 * time.Second
	defaultRateLimit   = 20 // requests per second
	defaultBurst       = 10
)

// RequestObserver receives request-level telemetry. Implementations must be
// safe for concurrent use.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration, err error)
	ObserveRefresh(ok bool)
	ObserveBreakerState(state string)
}

// Client talks to the tracking backend.
//
// All methods are safe for concurrent use.
type Client struct {
	baseURL     string
	http        *http.Client
	tokens      TokenStore
	fingerprint *Fingerprinter
	logger      *slog.Logger
	timeout     time.Duration
	refreshSkew time.Duration
	maxBodySize int64
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[*response]
	observer    RequestObserver
	onAuthLost  func()

	refreshGroup singleflight.Group
}

// New creates a [Client] for the backend at baseURL, e.g.
// "https://tracker.example.com/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: missing host", baseURL)
	}

	cfg := &clientConfig{
		timeout:     defaultTimeout,
		refreshSkew: defaultRefreshSkew,
		rateLimit:   defaultRateLimit,
		burst:       defaultBurst,
		breaker:     DefaultBreakerSettings(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        cfg.httpClient,
		tokens:      cfg.tokens,
		fingerprint: cfg.fingerprint,
		logger:      cfg.logger,
		timeout:     cfg.timeout,
		refreshSkew: cfg.refreshSkew,
		maxBodySize: maxResponseBodySize,
		limiter:     rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.burst),
		observer:    cfg.observer,
		onAuthLost:  cfg.onAuthLost,
	}
	if c.http == nil {
		c.http = newHTTPClient()
	}
	if c.tokens == nil {
		c.tokens = NewMemoryTokenStore()
	}
	if c.fingerprint == nil {
		c.fingerprint = NewFingerprinter()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.breaker = c.newBreaker(cfg.breaker)

	return c, nil
}

// Tokens returns the token store used by the client.
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

func (c *Client) newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[*response] {
	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "tracking-backend",
		MaxRequests: s.HalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// a cancelled caller says nothing about backend health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if c.observer != nil {
				c.observer.ObserveBreakerState(to.String())
			}
		},
	})
}

// do sends r and applies the session policy: a proactive refresh when the
// access token is about to expire, and a single refresh-and-retry on 401.
// Any non-2xx final response is returned as an *APIError.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	if r.session {
		c.refreshIfExpiring(ctx)
	}

	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}

	if r.session && resp.statusCode == http.StatusUnauthorized {
		if err := c.recoverSession(ctx); err != nil {
			return nil, err
		}
		c.logger.Debug("retrying request after token refresh", "path", r.path)
		resp, err = c.send(ctx, r)
		if err != nil {
			return nil, err
		}
	}

	if resp.statusCode >= http.StatusBadRequest {
		return nil, newAPIError(r, resp)
	}
	return resp, nil
}

// send rate-limits and executes one exchange through the circuit breaker.
func (c *Client) send(ctx context.Context, r request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.roundTrip(ctx, r)
	})
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.statusCode
	}
	if c.observer != nil {
		c.observer.ObserveRequest(r.method, r.label(), status, elapsed, err)
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil, err
	}

	c.logger.Debug("backend request",
		"method", r.method,
		"path", r.path,
		"status", status,
		"latency_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// recoverSession refreshes the tokens after a 401. Concurrent callers share
// one refresh, which runs detached from any single caller's cancellation and
// is bounded by the request timeout only. A caller whose ctx ends stops
// waiting without affecting the shared refresh.
func (c *Client) recoverSession(ctx context.Context) error {
	detached := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		return nil, c.Refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("joined in-flight token refresh")
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("token refresh: %w", ctx.Err())
	}
}

// refreshIfExpiring refreshes ahead of time when the access token is a JWT
// that expires within the refresh skew. Failures are logged only; the
// request then goes out and the 401 policy takes over.
func (c *Client) refreshIfExpiring(ctx context.Context) {
	tokens, err := c.tokens.Load()
	if err != nil || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return
	}
	exp, ok := tokenExpiry(tokens.AccessToken)
	if !ok || time.Until(exp) > c.refreshSkew {
		return
	}

	c.logger.Debug("access token about to expire, refreshing", "expires_at", exp)
	if err := c.recoverSession(ctx); err != nil {
		c.logger.Warn("proactive token refresh failed", "error", err)
	}
}

// sessionLost clears the stored tokens and notifies the auth-lost handler.
func (c *Client) sessionLost(reason error) {
	if err := c.tokens.Clear(); err != nil {
		c.logger.Error("failed to clear tokens", "error", err)
	}
	c.logger.Warn("session lost, login required", "error", reason)
	if c.onAuthLost != nil {
		c.onAuthLost()
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// The backend verifies tokens; the client only needs the expiry.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
