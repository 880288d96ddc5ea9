package kv

import (
	"context"
	"sync/atomic"
	"time"
)

// TTLBackend is the raw surface of a backend that expires keys itself.
type TTLBackend interface {
	RawGet(ctx context.Context, key string) ([]byte, bool, error)
	// RawPut upserts value. A zero ttl stores it without expiry and clears
	// any expiry set by an earlier write.
	RawPut(ctx context.Context, key string, value []byte, ttl time.Duration) error
	RawDelete(ctx context.Context, key string) error
	RawExists(ctx context.Context, key string) (bool, error)
	Close() error
}

// NativeStore implements Store over a TTLBackend. It trusts the backend to
// hide expired keys and performs no liveness checks of its own.
type NativeStore struct {
	name    string
	backend TTLBackend
	opts    options
	closed  atomic.Bool
}

var _ Store = (*NativeStore)(nil)

// NewNativeStore wraps backend. name labels errors and logs.
func NewNativeStore(name string, backend TTLBackend, opts ...Option) *NativeStore {
	return &NativeStore{name: name, backend: backend, opts: newOptions(opts)}
}

// Name returns the backend label.
func (s *NativeStore) Name() string { return s.name }

func (s *NativeStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	data, ok, err := s.backend.RawGet(ctx, key)
	if err != nil {
		return false, backendErr("get", s.name, key, err)
	}
	if !ok {
		return false, nil
	}
	if err := s.opts.codec.Decode(data, dst); err != nil {
		return false, NewError("get", s.name, key, ErrDecoding, err)
	}
	return true, nil
}

func (s *NativeStore) Set(ctx context.Context, key string, value any, timeout time.Duration) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	if timeout < 0 {
		return ErrInvalidTimeout
	}
	data, err := s.opts.codec.Encode(value)
	if err != nil {
		return NewError("set", s.name, key, ErrEncoding, err)
	}
	return backendErr("set", s.name, key, s.backend.RawPut(ctx, key, data, timeout))
}

func (s *NativeStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	return backendErr("delete", s.name, key, s.backend.RawDelete(ctx, key))
}

func (s *NativeStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	ok, err := s.backend.RawExists(ctx, key)
	if err != nil {
		return false, backendErr("exists", s.name, key, err)
	}
	return ok, nil
}

// Close releases the backend. Later calls return nil.
func (s *NativeStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return backendErr("close", s.name, "", s.backend.Close())
}

func (s *NativeStore) check(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrInvalidKey
	}
	return ctxErr(ctx)
}
