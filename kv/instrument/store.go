package instrument

import (
	"context"
	"time"

	"github.com/adeilh/skvdb/kv"
)

// Purger is implemented by stores that can sweep expired records, such as
// kv.LazyStore.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Store decorates a kv.Store with operation counters and latency
// histograms. Reads are labelled hit or miss instead of ok.
type Store struct {
	next    kv.Store
	backend string
	m       *Metrics
}

var (
	_ kv.Store = (*Store)(nil)
	_ Purger   = (*Store)(nil)
)

// Wrap instruments next under the given backend label.
func (m *Metrics) Wrap(backend string, next kv.Store) *Store {
	return &Store{next: next, backend: backend, m: m}
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() kv.Store { return s.next }

func (s *Store) observe(op string, start time.Time, result string) {
	s.m.duration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	s.m.operations.WithLabelValues(s.backend, op, result).Inc()
}

func readResult(found bool, err error) string {
	if err != nil {
		return Result(err)
	}
	if found {
		return "hit"
	}
	return "miss"
}

func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	start := time.Now()
	found, err := s.next.Get(ctx, key, dst)
	s.observe("get", start, readResult(found, err))
	return found, err
}

func (s *Store) Set(ctx context.Context, key string, value any, timeout time.Duration) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value, timeout)
	s.observe("set", start, Result(err))
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, Result(err))
	return err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	found, err := s.next.Exists(ctx, key)
	s.observe("exists", start, readResult(found, err))
	return found, err
}

// Purge forwards to the wrapped store when it can sweep, and reports
// kv.ErrNotSupported otherwise.
func (s *Store) Purge(ctx context.Context) (int, error) {
	p, ok := s.next.(Purger)
	if !ok {
		return 0, kv.NewError("purge", s.backend, "", kv.ErrNotSupported, errUnsupportedPurge)
	}
	start := time.Now()
	n, err := p.Purge(ctx)
	s.observe("purge", start, Result(err))
	return n, err
}

func (s *Store) Close() error { return s.next.Close() }
