package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

var (
	// ErrNoRefreshToken is returned when a request was rejected with 401 and
	// there is no refresh token to recover the session with.
	ErrNoRefreshToken = errors.New("session lost: no refresh token")

	// ErrSessionExpired is returned when refreshing the session failed.
	ErrSessionExpired = errors.New("session expired")

	// ErrBackendUnavailable is returned while the circuit breaker is open.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Message is the "message" field of the response body, if any.
	Message string

	Method string
	Path   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s: request failed with status %d", e.Method, e.Path, e.StatusCode)
}

// AsAPIError returns the [APIError] in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err means the session is gone.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrSessionExpired) {
		return true
	}
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

func newAPIError(r request, resp *response) *APIError {
	var body struct {
		Message string `json:"message"`
	}
	// error bodies are best effort; plain text bodies are used as is
	if err := json.Unmarshal(resp.body, &body); err != nil {
		body.Message = strings.TrimSpace(string(resp.body))
		if len(body.Message) > 200 {
			body.Message = ""
		}
	}
	return &APIError{
		StatusCode: resp.statusCode,
		Message:    body.Message,
		Method:     r.method,
		Path:       r.path,
	}
}
