package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
)

func TestLogin_StoresTokens(t *testing.T) {
	_, baseURL := newMockBackend(t)
	c := newTestClient(t, baseURL)

	session, err := c.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", session)
	}
	if session.User == nil || session.User.Email != testEmail {
		t.Errorf("User = %+v, want email %s", session.User, testEmail)
	}

	stored, _ := c.Tokens().Load()
	if stored.AccessToken != session.AccessToken || stored.RefreshToken != session.RefreshToken {
		t.Errorf("stored tokens %+v do not match session", stored)
	}
	if !c.Authenticated() {
		t.Error("expected Authenticated() after login")
	}
}

func TestLogin_SendsFingerprint(t *testing.T) {
	var got loginRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"token":"t"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Login(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	want := loginRequest{Email: "a@b.c", Password: "pw", Fingerprint: "test-device"}
	if got != want {
		t.Errorf("login body = %+v, want %+v", got, want)
	}
}

func TestLogin_TokenFieldVariants(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantAccess  string
		wantRefresh string
	}{
		{"token and camel refresh", `{"token":"a1","refreshToken":"r1"}`, "a1", "r1"},
		{"snake case", `{"access_token":"a2","refresh_token":"r2"}`, "a2", "r2"},
		{"camel case", `{"accessToken":"a3","refreshToken":"r3"}`, "a3", "r3"},
		{"token wins over others", `{"token":"a4","accessToken":"x","access_token":"y"}`, "a4", ""},
		{"snake refresh wins", `{"token":"a5","refresh_token":"r5","refreshToken":"x"}`, "a5", "r5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			session, err := c.Login(context.Background(), "a@b.c", "pw")
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if session.AccessToken != tt.wantAccess || session.RefreshToken != tt.wantRefresh {
				t.Errorf("tokens = (%q, %q), want (%q, %q)",
					session.AccessToken, session.RefreshToken, tt.wantAccess, tt.wantRefresh)
			}

			stored, _ := c.Tokens().Load()
			if stored.AccessToken != tt.wantAccess || stored.RefreshToken != tt.wantRefresh {
				t.Errorf("stored = %+v", stored)
			}
		})
	}
}

func TestLogin_NoTokenInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":"1","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	store := NewMemoryTokenStore()
	_ = store.Save(Tokens{AccessToken: "previous"})
	c := newTestClient(t, srv.URL, WithTokenStore(store))

	session, err := c.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.AccessToken != "" {
		t.Errorf("AccessToken = %q, want empty", session.AccessToken)
	}
	if stored, _ := store.Load(); stored.AccessToken != "previous" {
		t.Errorf("expected stored tokens untouched, got %+v", stored)
	}
}

func TestLogin_Failure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"backend message", http.StatusUnauthorized, `{"message":"Invalid email or password"}`, "Invalid email or password"},
		{"empty body", http.StatusUnauthorized, ``, "Login failed"},
		{"json without message", http.StatusBadRequest, `{"error":"bad"}`, "Login failed"},
		{"server error", http.StatusInternalServerError, `{"message":"db down"}`, "db down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.Login(context.Background(), "a@b.c", "pw")
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantMsg)
			}
			if c.Authenticated() {
				t.Error("expected no tokens after failed login")
			}
		})
	}
}

func TestLogin_WrongPasswordAgainstBackend(t *testing.T) {
	_, baseURL := newMockBackend(t)
	c := newTestClient(t, baseURL)

	_, err := c.Login(context.Background(), testEmail, "wrong")
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401", err)
	}
}

func TestLogout_RemovesOnlyAccessToken(t *testing.T) {
	backend, baseURL := newMockBackend(t)
	c := loggedInClient(t, baseURL)

	before, _ := c.Tokens().Load()
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	after, _ := c.Tokens().Load()
	if after.AccessToken != "" {
		t.Error("expected access token removed")
	}
	if after.RefreshToken != before.RefreshToken {
		t.Error("expected refresh token kept")
	}
	if backend.Count("POST /api/auth/logout") != 1 {
		t.Error("expected logout call to reach the backend")
	}
}

func TestLogout_BackendFailureStillRemovesToken(t *testing.T) {
	backend, baseURL := newMockBackend(t)
	c := loggedInClient(t, baseURL)
	backend.FailNext(1, http.StatusInternalServerError)

	if err := c.Logout(context.Background()); err == nil {
		t.Error("expected logout error to be reported")
	}
	if c.Authenticated() {
		t.Error("expected access token removed despite backend failure")
	}
}

func TestRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"a2"}`))
	}))
	defer srv.Close()

	store := NewMemoryTokenStore()
	_ = store.Save(Tokens{AccessToken: "a1", RefreshToken: "r1"})
	c := newTestClient(t, srv.URL, WithTokenStore(store))

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	got, _ := store.Load()
	if got != (Tokens{AccessToken: "a2", RefreshToken: "r1"}) {
		t.Errorf("tokens = %+v", got)
	}
}

func TestRefresh_EmptyTokenInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := NewMemoryTokenStore()
	_ = store.Save(Tokens{AccessToken: "a1", RefreshToken: "r1"})
	c := newTestClient(t, srv.URL, WithTokenStore(store))

	if err := c.Refresh(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Refresh() error = %v, want ErrSessionExpired", err)
	}
}
