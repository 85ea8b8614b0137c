package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// cap on buffered responses; exports are streamed and not capped
const maxResponseBodySize = 64 << 20 // 64MB

// connection pooling limits; all traffic goes to a single backend host
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// request describes one backend call.
type request struct {
	method string
	path   string
	// route is the path template used as a metrics label, e.g. /locations/{id}
	route  string
	query  url.Values
	body   any
	accept string

	// session marks requests that carry the bearer token and take part in
	// the 401 refresh-and-retry policy. Auth endpoints do not.
	session bool

	// sink receives the body of a successful response instead of the
	// buffer. Error responses are still buffered.
	sink io.Writer
}

func (r request) label() string {
	if r.route != "" {
		return r.route
	}
	return r.path
}

// response holds a fully read backend response. A streamed response has
// no body, only the number of bytes written to the sink.
type response struct {
	body       []byte
	written    int64
	statusCode int
	header     http.Header
	latency    time.Duration
}

// newHTTPClient builds the pooled client used when none is supplied.
// Timeouts are applied per request via context, not on the client.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		},
	}
}

// roundTrip performs a single HTTP exchange. 5xx responses are returned
// together with an *APIError so the circuit breaker counts them as failures.
func (c *Client) roundTrip(ctx context.Context, r request) (*response, error) {
	start := time.Now()

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.resolve(r.path, r.query), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	if r.session {
		tokens, err := c.tokens.Load()
		if err != nil {
			c.logger.Warn("failed to load tokens", "error", err)
		}
		if tokens.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		}
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp := &response{
		statusCode: httpResp.StatusCode,
		header:     httpResp.Header,
	}

	if r.sink != nil && resp.statusCode < http.StatusBadRequest {
		resp.written, err = io.Copy(r.sink, httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to stream response body after %d bytes: %w", resp.written, err)
		}
		resp.latency = time.Since(start)
		return resp, nil
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxBodySize {
		return nil, fmt.Errorf("%s %s: response body exceeds %d bytes", r.method, r.path, c.maxBodySize)
	}
	resp.body = data
	resp.latency = time.Since(start)
	if resp.statusCode >= http.StatusInternalServerError {
		return resp, newAPIError(r, resp)
	}
	return resp, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Close closes idle connections of the client's pool. The client remains
// usable afterwards.
func (c *Client) Close() {
	if c == nil || c.http == nil {
		return
	}
	c.http.CloseIdleConnections()
}

func decode[T any](r request, resp *response) (T, error) {
	var v T
	if err := json.Unmarshal(resp.body, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s %s response: %w", r.method, r.path, err)
	}
	return v, nil
}
