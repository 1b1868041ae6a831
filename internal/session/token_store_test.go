package session

import "testing"

func TestTokenStoreRoundTrip(t *testing.T) {
	store, err := NewTokenStore(t.TempDir())
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	if err := store.Save("abc.def.ghi"); err != nil {
		t.Fatalf("save: %v", err)
	}
	token, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if token != "abc.def.ghi" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestTokenStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewTokenStore(t.TempDir())
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	token, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}

func TestTokenStoreClear(t *testing.T) {
	store, err := NewTokenStore(t.TempDir())
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	if err := store.Save("token"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	token, err := store.Load()
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token after clear, got %q", token)
	}
	// Clearing an already-clear store is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
