package kv

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordBackend is an in-memory RecordBackend with failure injection.
type recordBackend struct {
	mu      sync.Mutex
	records map[string]Record
	version int64

	getErr    error
	putErr    error
	deleteErr error
	closed    bool

	deletes    int
	deleteIfs  int
	beforeDrop func()
}

func newRecordBackend() *recordBackend {
	return &recordBackend{records: make(map[string]Record)}
}

func (b *recordBackend) RawGet(_ context.Context, key string) (Record, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return Record{}, false, b.getErr
	}
	rec, ok := b.records[key]
	return rec, ok, nil
}

func (b *recordBackend) RawPut(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.version++
	rec.Version = b.version
	rec.Value = append([]byte(nil), rec.Value...)
	b.records[rec.Key] = rec
	return nil
}

func (b *recordBackend) RawDelete(_ context.Context, key string) error {
	if b.beforeDrop != nil {
		b.beforeDrop()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.records, key)
	return nil
}

func (b *recordBackend) RawPurge(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k, rec := range b.records {
		if !rec.Live(now) {
			delete(b.records, k)
			n++
		}
	}
	return n, nil
}

func (b *recordBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *recordBackend) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.records[key]
	return ok
}

// conditionalBackend adds RawDeleteIf on top of recordBackend.
type conditionalBackend struct {
	*recordBackend
}

func (b conditionalBackend) RawDeleteIf(_ context.Context, key string, version int64) (bool, error) {
	if b.beforeDrop != nil {
		b.beforeDrop()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteIfs++
	if b.deleteErr != nil {
		return false, b.deleteErr
	}
	rec, ok := b.records[key]
	if !ok || rec.Version != version {
		return false, nil
	}
	delete(b.records, key)
	return true, nil
}

// ttlBackend is an in-memory TTLBackend that expires keys against a clock.
type ttlBackend struct {
	mu     sync.Mutex
	clock  *fakeClock
	values map[string][]byte
	expiry map[string]time.Time
	err    error
}

func newTTLBackend(clock *fakeClock) *ttlBackend {
	return &ttlBackend{clock: clock, values: make(map[string][]byte), expiry: make(map[string]time.Time)}
}

func (b *ttlBackend) live(key string) bool {
	if _, ok := b.values[key]; !ok {
		return false
	}
	exp, ok := b.expiry[key]
	if ok && !exp.After(b.clock.Now()) {
		delete(b.values, key)
		delete(b.expiry, key)
		return false
	}
	return true
}

func (b *ttlBackend) RawGet(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, false, b.err
	}
	if !b.live(key) {
		return nil, false, nil
	}
	return b.values[key], true, nil
}

func (b *ttlBackend) RawPut(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.values[key] = append([]byte(nil), value...)
	delete(b.expiry, key)
	if ttl > 0 {
		b.expiry[key] = b.clock.Now().Add(ttl)
	}
	return nil
}

func (b *ttlBackend) RawDelete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	delete(b.values, key)
	delete(b.expiry, key)
	return nil
}

func (b *ttlBackend) RawExists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, b.err
	}
	return b.live(key), nil
}

func (b *ttlBackend) Close() error { return nil }

var errBoom = errors.New("boom")

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, format)
	l.mu.Unlock()
}

type recordingObserver struct {
	mu      sync.Mutex
	keys    []string
	failure []error
}

func (o *recordingObserver) Expired(key string, err error) {
	o.mu.Lock()
	o.keys = append(o.keys, key)
	o.failure = append(o.failure, err)
	o.mu.Unlock()
}
