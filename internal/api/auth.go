package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// defaultLoginError is reported when a failed login carries no message.
const defaultLoginError = "Login failed"

// User is the account returned by a successful login.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Session is the outcome of [Client.Login].
type Session struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Fingerprint string `json:"fingerprint"`
}

// loginResponse accepts every token field name the backend has used.
type loginResponse struct {
	User              *User  `json:"user"`
	Token             string `json:"token"`
	AccessToken       string `json:"access_token"`
	AccessTokenCamel  string `json:"accessToken"`
	RefreshToken      string `json:"refresh_token"`
	RefreshTokenCamel string `json:"refreshToken"`
}

func (r loginResponse) accessToken() string {
	return firstNonEmpty(r.Token, r.AccessToken, r.AccessTokenCamel)
}

func (r loginResponse) refreshToken() string {
	return firstNonEmpty(r.RefreshToken, r.RefreshTokenCamel)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates with email and password and stores the issued tokens.
//
// On a non-2xx response the returned *APIError carries the backend's
// message, or "Login failed" when there is none. A response without any
// token is not an error; nothing is stored and Session.AccessToken is empty.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	r := request{
		method: http.MethodPost,
		path:   "/auth/login",
		body: loginRequest{
			Email:       email,
			Password:    password,
			Fingerprint: c.fingerprint.Fingerprint(),
		},
	}

	resp, err := c.send(ctx, r)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok {
			return nil, loginError(apiErr)
		}
		return nil, err
	}
	if resp.statusCode >= http.StatusBadRequest {
		return nil, loginError(newAPIError(r, resp))
	}

	var body loginResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	session := &Session{
		User:         body.User,
		AccessToken:  body.accessToken(),
		RefreshToken: body.refreshToken(),
	}
	if session.AccessToken == "" {
		c.logger.Warn("login response carried no token")
		return session, nil
	}

	// a login without a refresh token keeps no stale one around
	if err := c.tokens.Save(Tokens{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}

	c.logger.Info("logged in", "email", email, "refresh_token", session.RefreshToken != "")
	return session, nil
}

func loginError(apiErr *APIError) *APIError {
	if apiErr.Message == "" {
		apiErr.Message = defaultLoginError
	}
	return apiErr
}

// Logout tells the backend to end the session and then removes the stored
// access token, whether or not the backend call succeeded. The refresh token
// is kept.
func (c *Client) Logout(ctx context.Context) error {
	// sent with the bearer token but outside the refresh-and-retry policy
	r := request{
		method:  http.MethodPost,
		path:    "/auth/logout",
		session: true,
	}
	resp, err := c.send(ctx, r)
	if err == nil && resp.statusCode >= http.StatusBadRequest {
		err = newAPIError(r, resp)
	}

	tokens, loadErr := c.tokens.Load()
	if loadErr == nil {
		tokens.AccessToken = ""
		loadErr = c.tokens.Save(tokens)
	}
	if loadErr != nil {
		return errors.Join(err, fmt.Errorf("failed to remove access token: %w", loadErr))
	}

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.logger.Info("logged out")
	return nil
}

// Refresh exchanges the stored refresh token for a new token pair.
//
// Without a refresh token the session is lost and [ErrNoRefreshToken] is
// returned. A failed exchange also loses the session and returns an error
// wrapping [ErrSessionExpired]. Losing the session clears both tokens and
// calls the auth-lost handler. An exchange cut short by ctx or the request
// timeout keeps the session.
func (c *Client) Refresh(ctx context.Context) error {
	tokens, err := c.tokens.Load()
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}
	if tokens.RefreshToken == "" {
		c.sessionLost(ErrNoRefreshToken)
		c.observeRefresh(false)
		return ErrNoRefreshToken
	}

	r := request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   refreshRequest{RefreshToken: tokens.RefreshToken},
	}

	fail := func(cause error) error {
		c.observeRefresh(false)
		// an interrupted exchange says nothing about the refresh token
		if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
			c.logger.Warn("token refresh interrupted, session kept", "error", cause)
			return fmt.Errorf("refresh: %w", cause)
		}
		err := fmt.Errorf("%w: %w", ErrSessionExpired, cause)
		c.sessionLost(err)
		return err
	}

	resp, err := c.send(ctx, r)
	if err != nil {
		return fail(err)
	}
	if resp.statusCode >= http.StatusBadRequest {
		return fail(newAPIError(r, resp))
	}

	body, err := decode[refreshResponse](r, resp)
	if err != nil {
		return fail(err)
	}
	if body.Token == "" {
		return fail(errors.New("refresh response carried no token"))
	}

	next := Tokens{AccessToken: body.Token, RefreshToken: body.RefreshToken}
	if next.RefreshToken == "" {
		next.RefreshToken = tokens.RefreshToken
	}
	if err := c.tokens.Save(next); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	c.observeRefresh(true)
	c.logger.Debug("tokens refreshed")
	return nil
}

// Authenticated reports whether an access token is stored.
func (c *Client) Authenticated() bool {
	tokens, err := c.tokens.Load()
	return err == nil && tokens.AccessToken != ""
}

func (c *Client) observeRefresh(ok bool) {
	if c.observer != nil {
		c.observer.ObserveRefresh(ok)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
