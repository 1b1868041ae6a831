package standalone

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newDemoAuth(t *testing.T) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash demo password: %v", err)
	}
	return NewAuth([]byte("auth-test-secret"), "demo@example.com", string(hash))
}

func TestDemoCredentialLogin(t *testing.T) {
	a := newDemoAuth(t)
	token, user, err := a.Login("demo@example.com", "password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || user.Email != "demo@example.com" {
		t.Fatalf("unexpected result: token=%q user=%+v", token, user)
	}
	ok, err := a.CheckToken(token)
	if err != nil || !ok {
		t.Fatalf("check token: ok=%v err=%v", ok, err)
	}
	me, err := a.Me(token)
	if err != nil || me.ID != user.ID {
		t.Fatalf("me: %+v err=%v", me, err)
	}
}

func TestWrongPasswordRejected(t *testing.T) {
	a := newDemoAuth(t)
	if _, _, err := a.Login("demo@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := a.Login("unknown@example.com", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown account, got %v", err)
	}
}

func TestRegisterThenLogin(t *testing.T) {
	a := newDemoAuth(t)
	if err := a.Register("Alice", "alice@example.com", "s3cret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.Register("Alice Again", "alice@example.com", "s3cret"); err == nil {
		t.Fatal("expected duplicate email rejected")
	}
	_, user, err := a.Login("alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("login after register: %v", err)
	}
	if user.Name != "Alice" {
		t.Fatalf("unexpected profile: %+v", user)
	}
}

func TestLoginHistoryRecordsAttempts(t *testing.T) {
	a := newDemoAuth(t)
	_, _, _ = a.Login("demo@example.com", "wrong")
	token, _, err := a.Login("demo@example.com", "password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	history, err := a.LoginHistory(token)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(history))
	}
	if history[0].Success || !history[1].Success {
		t.Fatalf("unexpected attempt outcomes: %+v", history)
	}
}

func TestUpdatePassword(t *testing.T) {
	a := newDemoAuth(t)
	token, _, err := a.Login("demo@example.com", "password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := a.UpdatePassword(token, "wrong", "next"); err == nil {
		t.Fatal("expected wrong current password rejected")
	}
	if err := a.UpdatePassword(token, "password", "next"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if _, _, err := a.Login("demo@example.com", "next"); err != nil {
		t.Fatalf("login with rotated password: %v", err)
	}
}
