package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adeilh/skvdb/kv"
	"github.com/adeilh/skvdb/kv/kvtest"
	"github.com/adeilh/skvdb/kv/memory"
)

func newSessionStore(t *testing.T) (*KVSessionStore, *kvtest.Clock, *memory.Backend) {
	t.Helper()
	clock := kvtest.NewClock()
	backend := memory.NewBackend(memory.Options{})
	store := kv.NewLazyStore(memory.Name, backend, kv.WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })
	return NewKVSessionStore(store, SessionStoreOptions{
		Prefix:     "session",
		DefaultTTL: time.Minute,
		Now:        clock.Now,
	}), clock, backend
}

func TestSessionStoreCreateGetDelete(t *testing.T) {
	store, _, _ := newSessionStore(t)
	ctx := context.Background()

	desc := SessionDescriptor{
		Subject:   "user-123",
		IP:        "127.0.0.1",
		UserAgent: "test-suite",
		Metadata:  map[string]string{"scope": "admin"},
	}

	token, err := store.Create(ctx, desc)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	fetched, err := store.Get(ctx, token.Descriptor().ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got := fetched.Descriptor()
	if got.Subject != desc.Subject || got.Metadata["scope"] != "admin" {
		t.Fatalf("Get() = %+v", got)
	}

	if err := store.Delete(ctx, token.Descriptor().ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, token.Descriptor().ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionExpiresAndIsRemoved(t *testing.T) {
	store, clock, backend := newSessionStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, SessionDescriptor{ID: "42", Subject: "alice", ExpiresAt: clock.Now().Add(60 * time.Second)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !backend.Has("session:42") {
		t.Fatalf("session not stored under session:42")
	}

	clock.Advance(61 * time.Second)

	if _, err := store.Get(ctx, token.Descriptor().ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after timeout, got %v", err)
	}
	if backend.Has("session:42") {
		t.Fatalf("expired session still held by the backend")
	}
}

func TestSessionTouchExtends(t *testing.T) {
	store, clock, _ := newSessionStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, SessionDescriptor{Subject: "touch-user", ExpiresAt: clock.Now().Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.Touch(ctx, token.Descriptor().ID, clock.Now().Add(10*time.Second)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	clock.Advance(5 * time.Second)

	fetched, err := store.Get(ctx, token.Descriptor().ID)
	if err != nil {
		t.Fatalf("expected session to persist after touch, got %v", err)
	}
	if fetched.IsExpired(clock.Now()) {
		t.Fatalf("IsExpired() = true for a live session")
	}

	if err := store.Touch(ctx, token.Descriptor().ID, clock.Now().Add(-time.Second)); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Touch() into the past error = %v, want ErrSessionExpired", err)
	}
}

func TestSessionCreateValidation(t *testing.T) {
	store, clock, _ := newSessionStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, SessionDescriptor{}); !errors.Is(err, ErrSessionInvalidDescriptor) {
		t.Fatalf("Create(no subject) error = %v", err)
	}
	now := clock.Now()
	_, err := store.Create(ctx, SessionDescriptor{Subject: "x", IssuedAt: now, ExpiresAt: now.Add(-time.Second)})
	if !errors.Is(err, ErrSessionInvalidDescriptor) {
		t.Fatalf("Create(expiry before issue) error = %v", err)
	}
	if _, err := store.Get(ctx, ""); !errors.Is(err, ErrSessionInvalidDescriptor) {
		t.Fatalf("Get(\"\") error = %v", err)
	}
}
