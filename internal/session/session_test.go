package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/tokenstore"
)

// fakeAuth is a minimal auth service. Handlers can be swapped per test.
type fakeAuth struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
}

func newFakeAuth(t *testing.T) (*fakeAuth, *httptest.Server) {
	t.Helper()
	f := &fakeAuth{handlers: map[string]http.HandlerFunc{}, calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.calls[key]++
		h := f.handlers[key]
		f.mu.Unlock()
		if h == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Not found"}`)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAuth) handle(key string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = h
}

func (f *fakeAuth) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func jsonReply(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

func newManager(srv *httptest.Server, store tokenstore.Store, opts Options) *Manager {
	client := api.New(api.Config{AuthURL: srv.URL, MediaURL: srv.URL, Store: store})
	return New(client, opts)
}

func TestInit(t *testing.T) {
	t.Run("no token is anonymous and not loading", func(t *testing.T) {
		_, srv := newFakeAuth(t)
		m := newManager(srv, tokenstore.NewMemory(tokenstore.Session{}), DefaultOptions())
		if s := m.Snapshot(); s.State != Anonymous || s.Loading {
			t.Fatalf("expected anonymous and idle before Init, got %+v", s)
		}
		m.Init(context.Background())
		if s := m.Snapshot(); s.State != Anonymous || s.Loading || s.User != nil {
			t.Errorf("expected anonymous after Init, got %+v", s)
		}
	})

	t.Run("stored token loads the profile", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("GET /users/u1", jsonReply(200, api.User{ID: "u1", Email: "a@b.co"}))

		m := newManager(srv, tokenstore.NewMemory(tokenstore.Session{AccessToken: "tok", UserID: "u1"}), DefaultOptions())
		if s := m.Snapshot(); s.State != Checking || !s.Loading {
			t.Fatalf("expected checking and loading before Init, got %+v", s)
		}
		m.Init(context.Background())
		s := m.Snapshot()
		if s.State != Authenticated || s.Loading {
			t.Fatalf("expected authenticated and idle, got %+v", s)
		}
		if s.User == nil || s.User.Email != "a@b.co" {
			t.Errorf("expected loaded profile, got %+v", s.User)
		}
	})

	t.Run("profile failure degrades to minimal user", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("GET /users/u1", jsonReply(500, map[string]string{"detail": "db down"}))

		m := newManager(srv, tokenstore.NewMemory(tokenstore.Session{AccessToken: "tok", UserID: "u1"}), DefaultOptions())
		m.Init(context.Background())
		s := m.Snapshot()
		if s.State != Authenticated {
			t.Fatalf("expected authentication to stand, got %s", s.State)
		}
		if s.User == nil || s.User.ID != "u1" || s.User.Email != "" {
			t.Errorf("expected {id} user, got %+v", s.User)
		}
		if s.Err != "" {
			t.Errorf("expected no error surfaced, got %q", s.Err)
		}
	})

	t.Run("without preload no profile request is made", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		m := newManager(srv, tokenstore.NewMemory(tokenstore.Session{AccessToken: "tok", UserID: "u1"}), Options{})
		m.Init(context.Background())
		if m.State() != Authenticated {
			t.Fatalf("expected authenticated, got %s", m.State())
		}
		if n := f.count("GET /users/u1"); n != 0 {
			t.Errorf("expected no profile fetch, got %d", n)
		}
	})

	t.Run("expired session during preload is anonymous", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("GET /users/u1", jsonReply(401, map[string]string{"detail": "expired"}))
		f.handle("POST /auth/refresh", jsonReply(401, map[string]string{"detail": "invalid refresh token"}))

		store := tokenstore.NewMemory(tokenstore.Session{AccessToken: "tok", UserID: "u1"})
		m := newManager(srv, store, DefaultOptions())
		m.Init(context.Background())
		if m.State() != Anonymous {
			t.Errorf("expected anonymous, got %s", m.State())
		}
		if store.Get() != "" {
			t.Error("expected store cleared")
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("totp required without code stores nothing", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("POST /auth/login", jsonReply(200, map[string]any{"totp_required": true, "message": "Enter your code"}))

		store := tokenstore.NewMemory(tokenstore.Session{})
		m := newManager(srv, store, DefaultOptions())
		resp, err := m.Login(context.Background(), "a@b.co", "secret123", "")
		if err != nil {
			t.Fatalf("Login() returned error: %v", err)
		}
		if !resp.TOTPRequired || resp.Message != "Enter your code" || resp.AccessToken != "" {
			t.Errorf("expected raw totp response, got %+v", resp)
		}
		if store.Get() != "" || store.UserID() != "" {
			t.Errorf("expected nothing stored, got %+v", store.Snapshot())
		}
		if m.State() != TOTPPending {
			t.Errorf("expected totp_pending, got %s", m.State())
		}
	})

	t.Run("second call with code stores tokens", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			var req api.LoginRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.TOTPCode == "" {
				jsonReply(200, map[string]any{"totp_required": true})(w, r)
				return
			}
			jsonReply(200, api.LoginResponse{AccessToken: "a1", RefreshToken: "r1", UserID: "u1"})(w, r)
		})
		f.handle("GET /users/u1", jsonReply(200, api.User{ID: "u1", FullName: "Ada"}))

		store := tokenstore.NewMemory(tokenstore.Session{})
		m := newManager(srv, store, DefaultOptions())
		ctx := context.Background()
		if _, err := m.Login(ctx, "a@b.co", "secret123", ""); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Login(ctx, "a@b.co", "secret123", "123456"); err != nil {
			t.Fatalf("Login() with code returned error: %v", err)
		}
		if store.Get() != "a1" || store.RefreshToken() != "r1" || store.UserID() != "u1" {
			t.Errorf("expected stored session, got %+v", store.Snapshot())
		}
		s := m.Snapshot()
		if s.State != Authenticated || s.User == nil || s.User.FullName != "Ada" {
			t.Errorf("expected authenticated with profile, got %+v", s)
		}
	})

	t.Run("failed profile fetch after login is tolerated", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("POST /auth/login", jsonReply(200, api.LoginResponse{AccessToken: "a1", UserID: "u1"}))

		m := newManager(srv, nil, DefaultOptions())
		if _, err := m.Login(context.Background(), "a@b.co", "pw", ""); err != nil {
			t.Fatalf("Login() returned error: %v", err)
		}
		if u := m.User(); m.State() != Authenticated || u == nil || u.ID != "u1" {
			t.Errorf("expected authenticated {id} user, got %s %+v", m.State(), u)
		}
	})

	t.Run("bad credentials set the error slot and return the error", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("POST /auth/login", jsonReply(401, map[string]string{"detail": "Invalid email or password"}))

		m := newManager(srv, nil, DefaultOptions())
		_, err := m.Login(context.Background(), "a@b.co", "wrong", "")
		if api.StatusOf(err) != http.StatusUnauthorized {
			t.Fatalf("expected 401 error, got %v", err)
		}
		s := m.Snapshot()
		if s.Err != "Invalid email or password" || s.Loading || s.State != Anonymous {
			t.Errorf("unexpected snapshot %+v", s)
		}
		if f.count("POST /auth/refresh") != 0 {
			t.Error("login must not trigger a refresh")
		}
	})

	t.Run("response without token is an error", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("POST /auth/login", jsonReply(200, map[string]string{"message": "ok"}))

		m := newManager(srv, nil, DefaultOptions())
		if _, err := m.Login(context.Background(), "a@b.co", "pw", ""); !errors.Is(err, errNoToken) {
			t.Errorf("expected errNoToken, got %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	t.Run("clears state even when the backend fails", func(t *testing.T) {
		f, srv := newFakeAuth(t)
		f.handle("POST /auth/logout", jsonReply(500, map[string]string{"detail": "boom"}))
		f.handle("GET /users/u1", jsonReply(200, api.User{ID: "u1"}))

		store := tokenstore.NewMemory(tokenstore.Session{AccessToken: "tok", RefreshToken: "r", UserID: "u1"})
		m := newManager(srv, store, DefaultOptions())
		m.Init(context.Background())
		if err := m.Logout(context.Background()); err != nil {
			t.Fatalf("Logout() returned error: %v", err)
		}
		if store.Get() != "" || store.UserID() != "" {
			t.Errorf("expected store cleared, got %+v", store.Snapshot())
		}
		if s := m.Snapshot(); s.State != Anonymous || s.User != nil || s.Err != "" {
			t.Errorf("expected clean anonymous state, got %+v", s)
		}
	})
}

func TestPassThroughFlows(t *testing.T) {
	f, srv := newFakeAuth(t)
	f.handle("POST /auth/register", jsonReply(201, api.MessageResponse{Message: "Check your email", UserID: "u9"}))
	f.handle("POST /auth/verify-email", jsonReply(400, map[string]string{"detail": "Token expired"}))
	f.handle("POST /auth/forgot-password", jsonReply(200, api.MessageResponse{Message: "sent"}))
	f.handle("POST /auth/reset-password", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	f.handle("POST /auth/generate-passcode", jsonReply(200, api.MessageResponse{Message: "sent"}))
	f.handle("POST /auth/verify-passcode", jsonReply(200, api.LoginResponse{AccessToken: "p1", UserID: "u2"}))
	f.handle("GET /users/u2", jsonReply(200, api.User{ID: "u2", Email: "p@b.co"}))

	store := tokenstore.NewMemory(tokenstore.Session{})
	m := newManager(srv, store, DefaultOptions())
	ctx := context.Background()

	t.Run("register", func(t *testing.T) {
		out, err := m.Register(ctx, api.RegisterRequest{Email: "n@b.co", Password: "secret123"})
		if err != nil || out.UserID != "u9" {
			t.Errorf("unexpected register result %+v, %v", out, err)
		}
		if m.State() != Anonymous {
			t.Error("register must not sign in")
		}
	})

	t.Run("verify email failure captures detail", func(t *testing.T) {
		if _, err := m.VerifyEmail(ctx, "t"); err == nil {
			t.Fatal("expected error")
		}
		if got := m.Snapshot().Err; got != "Token expired" {
			t.Errorf("expected 'Token expired', got %q", got)
		}
	})

	t.Run("successful call clears the previous error", func(t *testing.T) {
		if _, err := m.RequestPasswordReset(ctx, "a@b.co"); err != nil {
			t.Fatal(err)
		}
		if got := m.Snapshot().Err; got != "" {
			t.Errorf("expected error cleared, got %q", got)
		}
	})

	t.Run("empty body error falls back to status line", func(t *testing.T) {
		if _, err := m.ResetPassword(ctx, "t", "newpass123"); err == nil {
			t.Fatal("expected error")
		}
		if got := m.Snapshot().Err; got != "HTTP 400 Bad Request" {
			t.Errorf("expected status line, got %q", got)
		}
	})

	t.Run("passcode sign in", func(t *testing.T) {
		if _, err := m.GeneratePasscode(ctx, "p@b.co"); err != nil {
			t.Fatal(err)
		}
		if _, err := m.VerifyPasscode(ctx, "p@b.co", "123456"); err != nil {
			t.Fatalf("VerifyPasscode() returned error: %v", err)
		}
		if store.Get() != "p1" || m.State() != Authenticated || m.User().Email != "p@b.co" {
			t.Errorf("expected passcode session, got %+v / %+v", store.Snapshot(), m.Snapshot())
		}
	})
}

func TestHandleOAuthCallback(t *testing.T) {
	f, srv := newFakeAuth(t)
	f.handle("POST /auth/oauth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "c1" || body["state"] != "s1" {
			t.Errorf("unexpected callback body %v", body)
		}
		jsonReply(200, api.LoginResponse{AccessToken: "o1", RefreshToken: "or", UserID: "u3"})(w, r)
	})

	store := tokenstore.NewMemory(tokenstore.Session{})
	m := newManager(srv, store, Options{})
	if _, err := m.HandleOAuthCallback(context.Background(), "google", "", "s1", ""); err == nil {
		t.Error("expected error for missing code")
	}
	if _, err := m.HandleOAuthCallback(context.Background(), "google", "c1", "s1", "http://localhost/cb"); err != nil {
		t.Fatalf("HandleOAuthCallback() returned error: %v", err)
	}
	if store.Get() != "o1" || store.UserID() != "u3" {
		t.Errorf("expected stored session, got %+v", store.Snapshot())
	}
}

func TestTwoFactorSettings(t *testing.T) {
	f, srv := newFakeAuth(t)
	f.handle("GET /users/u1", jsonReply(200, api.User{ID: "u1"}))
	f.handle("POST /users/me/2fa/enable", jsonReply(200, api.MessageResponse{Message: "enabled"}))
	f.handle("POST /users/me/2fa/disable", jsonReply(200, api.MessageResponse{Message: "disabled"}))

	m := newManager(srv, tokenstore.NewMemory(tokenstore.Session{AccessToken: "t", UserID: "u1"}), DefaultOptions())
	m.Init(context.Background())

	if _, err := m.Enable2FA(context.Background(), "123456"); err != nil {
		t.Fatal(err)
	}
	if !m.User().Is2FAEnabled {
		t.Error("expected 2FA flag set")
	}
	if _, err := m.Disable2FA(context.Background(), "123456", "pw"); err != nil {
		t.Fatal(err)
	}
	if m.User().Is2FAEnabled {
		t.Error("expected 2FA flag cleared")
	}
}

func TestOnChange(t *testing.T) {
	_, srv := newFakeAuth(t)
	var mu sync.Mutex
	var states []State
	opts := Options{OnChange: func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	}}
	m := newManager(srv, tokenstore.NewMemory(tokenstore.Session{AccessToken: "t", UserID: "u1"}), opts)
	m.Init(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[len(states)-1] != Authenticated {
		t.Errorf("expected final authenticated notification, got %v", states)
	}
}

func TestProvider(t *testing.T) {
	_, srv := newFakeAuth(t)

	t.Run("anonymous session is rejected", func(t *testing.T) {
		ctx := Provide(context.Background(), newManager(srv, nil, Options{}))
		if _, ok := FromContext(ctx); !ok {
			t.Fatal("expected manager in context")
		}
		if _, err := RequireAuthenticated(ctx); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("authenticated session is returned", func(t *testing.T) {
		m := newManager(srv, tokenstore.NewMemory(tokenstore.Session{AccessToken: "t", UserID: "u"}), Options{})
		ctx := Provide(context.Background(), m)
		got, err := RequireAuthenticated(ctx)
		if err != nil || got != m {
			t.Errorf("expected manager, got %v, %v", got, err)
		}
		if MustFromContext(ctx) != m {
			t.Error("expected MustFromContext to return the manager")
		}
	})

	t.Run("Attach stores the manager without the startup check", func(t *testing.T) {
		fake, srv := newFakeAuth(t)
		store := tokenstore.NewMemory(tokenstore.Session{AccessToken: "t", UserID: "u"})
		m := newManager(srv, store, DefaultOptions())
		ctx := Attach(context.Background(), m)

		if MustFromContext(ctx) != m {
			t.Error("expected MustFromContext to return the manager")
		}
		if fake.count("GET /users/u") != 0 {
			t.Error("expected no profile fetch")
		}
		if m.State() != Checking {
			t.Errorf("expected checking until Init, got %s", m.State())
		}
		if _, err := RequireAuthenticated(ctx); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated before Init, got %v", err)
		}
		if store.Get() != "t" {
			t.Error("expected stored token to be untouched")
		}
	})

	t.Run("missing provider panics on MustFromContext", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		MustFromContext(context.Background())
	})
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Anonymous:     "anonymous",
		Checking:      "checking",
		Authenticated: "authenticated",
		TOTPPending:   "totp_pending",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %s, got %s", want, s.String())
		}
	}
}
