// Package memory keeps records in process memory. Keys are spread over
// shards picked by murmur3 so writers to different keys rarely contend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/adeilh/skvdb/kv"
)

// Name is the backend label used in errors and metrics.
const Name = "memory"

const defaultShards = 16

// Options controls the in-memory backend.
type Options struct {
	Shards int
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = defaultShards
	}
	return o
}

// Backend implements kv.RecordBackend, kv.ConditionalDeleter and kv.Purger.
type Backend struct {
	shards  []*shard
	mu      sync.Mutex
	version int64
}

type shard struct {
	mu      sync.RWMutex
	records map[string]kv.Record
}

// NewBackend allocates an empty backend.
func NewBackend(opts Options) *Backend {
	cfg := opts.withDefaults()
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{records: make(map[string]kv.Record)}
	}
	return &Backend{shards: shards}
}

// NewStore returns a lazily expiring store over a fresh Backend.
func NewStore(opts Options, storeOpts ...kv.Option) *kv.LazyStore {
	return kv.NewLazyStore(Name, NewBackend(opts), storeOpts...)
}

func (b *Backend) shardFor(key string) *shard {
	return b.shards[murmur3.Sum64([]byte(key))%uint64(len(b.shards))]
}

func (b *Backend) nextVersion() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version++
	return b.version
}

func (b *Backend) RawGet(_ context.Context, key string) (kv.Record, bool, error) {
	s := b.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return kv.Record{}, false, nil
	}
	rec.Value = append([]byte(nil), rec.Value...)
	return rec, true, nil
}

func (b *Backend) RawPut(_ context.Context, rec kv.Record) error {
	rec.Value = append([]byte(nil), rec.Value...)
	rec.Version = b.nextVersion()
	s := b.shardFor(rec.Key)
	s.mu.Lock()
	s.records[rec.Key] = rec
	s.mu.Unlock()
	return nil
}

func (b *Backend) RawDelete(_ context.Context, key string) error {
	s := b.shardFor(key)
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

func (b *Backend) RawDeleteIf(_ context.Context, key string, version int64) (bool, error) {
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Version != version {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}

func (b *Backend) RawPurge(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, s := range b.shards {
		s.mu.Lock()
		for k, rec := range s.records {
			if !rec.Live(now) {
				delete(s.records, k)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n, nil
}

// Len counts stored records, expired ones included.
func (b *Backend) Len() int {
	n := 0
	for _, s := range b.shards {
		s.mu.RLock()
		n += len(s.records)
		s.mu.RUnlock()
	}
	return n
}

// Has reports whether key is physically stored, expired or not.
func (b *Backend) Has(key string) bool {
	s := b.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key]
	return ok
}

// Close drops every record.
func (b *Backend) Close() error {
	for _, s := range b.shards {
		s.mu.Lock()
		s.records = make(map[string]kv.Record)
		s.mu.Unlock()
	}
	return nil
}
