package kv

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// RecordBackend is the raw surface of a backend that has no per-key TTL and
// stores the expiry as part of the record.
type RecordBackend interface {
	// RawGet returns the record stored at key, expired or not.
	RawGet(ctx context.Context, key string) (Record, bool, error)
	// RawPut upserts rec. The backend assigns a fresh Version; rec.Version
	// is ignored.
	RawPut(ctx context.Context, rec Record) error
	// RawDelete removes key; absent keys are not an error.
	RawDelete(ctx context.Context, key string) error
	Close() error
}

// ConditionalDeleter is implemented by backends that can delete a record only
// if it still carries the given version.
type ConditionalDeleter interface {
	RawDeleteIf(ctx context.Context, key string, version int64) (bool, error)
}

// Purger is implemented by backends that can drop every record expired at
// now in one sweep.
type Purger interface {
	RawPurge(ctx context.Context, now time.Time) (int, error)
}

// LazyStore implements Store over a RecordBackend. Expiry is checked on every
// read; a read that finds an expired record deletes it before reporting the
// key as absent.
//
// The read and the cleanup are two backend calls. When the backend is a
// ConditionalDeleter the cleanup only removes the exact version that was
// judged expired, so a Set landing in between survives. Otherwise such a Set
// can be lost.
type LazyStore struct {
	name    string
	backend RecordBackend
	opts    options
	closed  atomic.Bool
}

var _ Store = (*LazyStore)(nil)

// NewLazyStore wraps backend. name labels errors and logs.
func NewLazyStore(name string, backend RecordBackend, opts ...Option) *LazyStore {
	return &LazyStore{name: name, backend: backend, opts: newOptions(opts)}
}

// Name returns the backend label.
func (s *LazyStore) Name() string { return s.name }

func (s *LazyStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	rec, ok, err := s.lookup(ctx, "get", key)
	if err != nil || !ok {
		return false, err
	}
	if err := s.opts.codec.Decode(rec.Value, dst); err != nil {
		return false, NewError("get", s.name, key, ErrDecoding, err)
	}
	return true, nil
}

func (s *LazyStore) Set(ctx context.Context, key string, value any, timeout time.Duration) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	expiresAt, err := ComputeExpiry(timeout, s.opts.now())
	if err != nil {
		return err
	}
	data, err := s.opts.codec.Encode(value)
	if err != nil {
		return NewError("set", s.name, key, ErrEncoding, err)
	}
	rec := Record{Key: key, Value: data, ExpiresAt: expiresAt}
	return backendErr("set", s.name, key, s.backend.RawPut(ctx, rec))
}

func (s *LazyStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	return backendErr("delete", s.name, key, s.backend.RawDelete(ctx, key))
}

func (s *LazyStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.lookup(ctx, "exists", key)
	return ok, err
}

// Purge removes every expired record in one pass and returns how many were
// dropped. Reads clean up on their own; Purge only reclaims space held by
// keys nobody reads any more.
func (s *LazyStore) Purge(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	p, ok := s.backend.(Purger)
	if !ok {
		return 0, NewError("purge", s.name, "", ErrNotSupported, errors.New("backend cannot sweep expired records"))
	}
	n, err := p.RawPurge(ctx, s.opts.now())
	if err != nil {
		return n, backendErr("purge", s.name, "", err)
	}
	if n > 0 {
		s.opts.logger.Debugf("kv: %s: purged %d expired records", s.name, n)
	}
	return n, nil
}

// Close releases the backend. Later calls return nil.
func (s *LazyStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return backendErr("close", s.name, "", s.backend.Close())
}

// lookup reads key and applies the expiry policy with a single clock sample.
func (s *LazyStore) lookup(ctx context.Context, op, key string) (Record, bool, error) {
	if err := s.check(ctx, key); err != nil {
		return Record{}, false, err
	}
	now := s.opts.now()
	rec, ok, err := s.backend.RawGet(ctx, key)
	if err != nil {
		return Record{}, false, backendErr(op, s.name, key, err)
	}
	if !ok {
		return Record{}, false, nil
	}
	if !rec.Live(now) {
		s.expire(ctx, key, rec.Version)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// expire deletes a record found past its expiry. Failures are logged and
// swallowed: the record is already gone as far as the caller is concerned and
// the next read tries again.
func (s *LazyStore) expire(ctx context.Context, key string, version int64) {
	var err error
	if cd, ok := s.backend.(ConditionalDeleter); ok {
		_, err = cd.RawDeleteIf(ctx, key, version)
	} else {
		err = s.backend.RawDelete(ctx, key)
	}
	if err != nil {
		s.opts.logger.Warnf("kv: %s: cleanup of expired key %q failed: %v", s.name, key, err)
	} else {
		s.opts.logger.Debugf("kv: %s: removed expired key %q", s.name, key)
	}
	if s.opts.observer != nil {
		s.opts.observer.Expired(key, err)
	}
}

func (s *LazyStore) check(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrInvalidKey
	}
	return ctxErr(ctx)
}
