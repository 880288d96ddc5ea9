package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNativeStoreDelegatesExpiry(t *testing.T) {
	clock := newFakeClock()
	backend := newTTLBackend(clock)
	store := NewNativeStore("native", backend)
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "k", map[string]any{"user": "alice"}, time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, ok, err := GetValue(ctx, store, "k")
	if err != nil || !ok {
		t.Fatalf("GetValue() = %v, %v, %v", v, ok, err)
	}
	if m, _ := v.(map[string]any); m["user"] != "alice" {
		t.Fatalf("GetValue() = %#v", v)
	}

	clock.Advance(time.Second)

	if ok, err := store.Exists(ctx, "k"); err != nil || ok {
		t.Fatalf("Exists() after ttl = %v, %v", ok, err)
	}
	var out any
	if ok, err := store.Get(ctx, "k", &out); err != nil || ok {
		t.Fatalf("Get() after ttl = %v, %v", ok, err)
	}
}

func TestNativeStoreZeroTimeoutClearsPreviousTTL(t *testing.T) {
	clock := newFakeClock()
	store := NewNativeStore("native", newTTLBackend(clock))
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v1", time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "k", "v2", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clock.Advance(time.Hour)

	var got string
	if ok, err := store.Get(ctx, "k", &got); err != nil || !ok || got != "v2" {
		t.Fatalf("Get() = %q, %v, %v; want v2", got, ok, err)
	}
}

func TestNativeStoreErrors(t *testing.T) {
	clock := newFakeClock()
	backend := newTTLBackend(clock)
	store := NewNativeStore("native", backend)
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", -1); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("Set(negative) error = %v", err)
	}
	if _, err := store.Exists(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Exists(empty) error = %v", err)
	}
	if err := store.Set(ctx, "k", func() {}, 0); !errors.Is(err, ErrEncoding) {
		t.Fatalf("Set(func) error = %v", err)
	}

	backend.values["bad"] = []byte("}")
	var v any
	if _, err := store.Get(ctx, "bad", &v); !errors.Is(err, ErrDecoding) {
		t.Fatalf("Get(corrupt) error = %v", err)
	}

	backend.err = errBoom
	if err := store.Delete(ctx, "k"); !errors.Is(err, ErrBackend) || !errors.Is(err, errBoom) {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := store.Get(ctx, "k", &v); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get() after Close error = %v", err)
	}
}
