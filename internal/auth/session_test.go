package auth

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	manager := NewSessionManager(0)

	token, expiresAt, err := manager.Create("admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.IsZero() {
		t.Fatalf("zero ttl sessions should not expire, got %v", expiresAt)
	}

	username, ok, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok || username != "admin" {
		t.Fatalf("expected admin session, got %q ok=%v", username, ok)
	}

	if err := manager.Revoke(token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, ok, _ := manager.Validate(token); ok {
		t.Fatal("revoked token must not validate")
	}
}

func TestSessionCreateRequiresUsername(t *testing.T) {
	manager := NewSessionManager(0)
	if _, _, err := manager.Create(""); err != ErrInvalidUsername {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestSessionTTLExpiry(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(time.Hour, WithStore(store))

	token, expiresAt, err := manager.Create("admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatal("ttl sessions must carry an expiry")
	}

	// Backdate the stored expiry to force lazy eviction on Validate.
	if err := store.Save(token, "admin", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok, _ := manager.Validate(token); ok {
		t.Fatal("expired token must not validate")
	}
	if _, ok, _ := store.Get(token); ok {
		t.Fatal("expired token should be deleted on validation")
	}
}

func TestSessionRevokeAll(t *testing.T) {
	manager := NewSessionManager(0)

	first, _, err := manager.Create("admin")
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, _, err := manager.Create("admin")
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	if err := manager.RevokeAll(); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if _, ok, _ := manager.Validate(first); ok {
		t.Fatal("first session should be gone")
	}
	if _, ok, _ := manager.Validate(second); ok {
		t.Fatal("second session should be gone")
	}
}

func TestPurgeExpiredRemovesStaleSessions(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(time.Hour, WithStore(store))

	stale, _, err := manager.Create("admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Save(stale, "admin", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	live, _, err := manager.Create("admin")
	if err != nil {
		t.Fatalf("Create live: %v", err)
	}

	if err := manager.PurgeExpired(); err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if _, ok, _ := store.Get(stale); ok {
		t.Fatal("stale session should be purged")
	}
	if _, ok, _ := store.Get(live); !ok {
		t.Fatal("live session should survive purge")
	}
}
