package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"securesign/internal/authclient"
	"securesign/pkg/domain"
)

const testSecret = "manager-test-secret"

func signTestToken(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "user-1",
		"email": "demo@example.com",
		"name":  "Demo User",
		"iat":   time.Now().Unix(),
		"exp":   exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// fakeAuthServer accepts exactly demo@example.com/password and issues
// tokens signed with testSecret.
func fakeAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Email != "demo@example.com" || req.Password != "password" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token": signTestToken(t, testSecret, time.Now().Add(time.Hour)),
				"userInfo": domain.User{
					ID:    "user-1",
					Email: "demo@example.com",
					Name:  "Demo User",
				},
			})
		case "/register":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		case "/check-token":
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data":   map[string]any{"valid": true},
			})
		case "/me":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": domain.User{ID: "user-1", Email: "demo@example.com", Name: "Demo User"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestManager(t *testing.T, srv *httptest.Server, secret string) (*Manager, *TokenStore) {
	t.Helper()
	tokens, err := NewTokenStore(t.TempDir())
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	auth := RemoteAuth{Client: authclient.NewClient(srv.URL)}
	return NewManager(auth, tokens, []byte(secret), 0), tokens
}

func TestLoginWithDemoCredentials(t *testing.T) {
	srv := fakeAuthServer(t)
	defer srv.Close()
	mgr, tokens := newTestManager(t, srv, testSecret)

	token, user, err := mgr.Login("demo@example.com", "password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Email != "demo@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if token == "" {
		t.Fatal("login must return the issued token")
	}
	state, _ := mgr.Current()
	if state != StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", state)
	}
	saved, err := tokens.Load()
	if err != nil || saved != token {
		t.Fatalf("expected persisted token %q, got %q err=%v", token, saved, err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := fakeAuthServer(t)
	defer srv.Close()
	mgr, _ := newTestManager(t, srv, testSecret)

	_, _, err := mgr.Login("demo@example.com", "wrong")
	if err == nil {
		t.Fatal("expected login failure")
	}
	var apiErr *authclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid credentials" {
		t.Fatalf("expected Invalid credentials, got %v", err)
	}
	state, _ := mgr.Current()
	if state == StateAuthenticated {
		t.Fatal("expected not authenticated")
	}
}

func TestRestoreWithValidToken(t *testing.T) {
	srv := fakeAuthServer(t)
	defer srv.Close()
	mgr, tokens := newTestManager(t, srv, testSecret)

	token := signTestToken(t, testSecret, time.Now().Add(time.Hour))
	if err := tokens.Save(token); err != nil {
		t.Fatalf("save token: %v", err)
	}
	if state := mgr.Restore(); state != StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", state)
	}
	_, user := mgr.Current()
	if user.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestRestoreClearsExpiredToken(t *testing.T) {
	srv := fakeAuthServer(t)
	defer srv.Close()
	mgr, tokens := newTestManager(t, srv, testSecret)

	token := signTestToken(t, testSecret, time.Now().Add(-time.Hour))
	if err := tokens.Save(token); err != nil {
		t.Fatalf("save token: %v", err)
	}
	if state := mgr.Restore(); state != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", state)
	}
	saved, err := tokens.Load()
	if err != nil {
		t.Fatalf("load after restore: %v", err)
	}
	if saved != "" {
		t.Fatal("expected stale token cleared")
	}
}

func TestRestoreClearsTokenOnNetworkFailure(t *testing.T) {
	srv := fakeAuthServer(t)
	mgr, tokens := newTestManager(t, srv, testSecret)
	srv.Close()

	token := signTestToken(t, testSecret, time.Now().Add(time.Hour))
	if err := tokens.Save(token); err != nil {
		t.Fatalf("save token: %v", err)
	}
	if state := mgr.Restore(); state != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", state)
	}
	if saved, _ := tokens.Load(); saved != "" {
		t.Fatal("expected token cleared after failed validation")
	}
}

func TestRestoreWithNoToken(t *testing.T) {
	srv := fakeAuthServer(t)
	defer srv.Close()
	mgr, _ := newTestManager(t, srv, testSecret)
	if state := mgr.Restore(); state != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", state)
	}
}

func TestAuthenticateLocallyRejectsForgedToken(t *testing.T) {
	srv := fakeAuthServer(t)
	defer srv.Close()
	mgr, _ := newTestManager(t, srv, testSecret)

	forged := signTestToken(t, "other-secret", time.Now().Add(time.Hour))
	if _, err := mgr.Authenticate(forged); err == nil {
		t.Fatal("expected forged token rejected")
	}
	valid := signTestToken(t, testSecret, time.Now().Add(time.Hour))
	user, err := mgr.Authenticate(valid)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	srv := fakeAuthServer(t)
	defer srv.Close()
	mgr, tokens := newTestManager(t, srv, testSecret)

	if _, _, err := mgr.Login("demo@example.com", "password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := mgr.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	state, _ := mgr.Current()
	if state != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", state)
	}
	if saved, _ := tokens.Load(); saved != "" {
		t.Fatal("expected token cleared on logout")
	}
}
