// Package kv defines a backend-agnostic key-value store: callers get, set,
// delete and probe keys through Store while the records live in Redis,
// PostgreSQL, a bbolt file, process memory or a remote key-value service.
//
// Backends that expire keys on their own are driven by NativeStore. Backends
// that only know how to put, get and delete records are driven by LazyStore,
// which keeps the expiry next to the value and enforces it on read.
//
// Concurrent writers to the same key race; the backend's own write ordering
// decides which value survives (usually last write wins). Store does not
// serialise callers.
package kv

import (
	"context"
	"time"
)

// Store is the uniform contract every backend satisfies.
type Store interface {
	// Get decodes the live value stored at key into dst. It reports false
	// with a nil error when the key is absent or has expired; an expired
	// record is removed as a side effect.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set upserts value at key. A zero timeout stores the value without
	// expiry; a positive timeout makes it unobservable once elapsed.
	Set(ctx context.Context, key string, value any, timeout time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether Get would find a value, applying the same
	// expiry check and cleanup.
	Exists(ctx context.Context, key string) (bool, error)
	// Close releases the backend session.
	Close() error
}

// GetValue fetches the generic decoded value stored at key.
func GetValue(ctx context.Context, s Store, key string) (any, bool, error) {
	var v any
	ok, err := s.Get(ctx, key, &v)
	if err != nil || !ok {
		return nil, ok, err
	}
	return v, true, nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
