// Package redis adapts a Redis server to kv.Store. Redis expires keys on its
// own, so timeouts are passed through as PX and the store never sees an
// expired key.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adeilh/skvdb/kv"
)

// Name is the backend label used in errors and metrics.
const Name = "redis"

// Backend implements kv.TTLBackend with go-redis.
type Backend struct {
	client goredis.UniversalClient
	prefix string
}

// NewBackend wraps an existing client. The caller hands over ownership:
// Close closes the client.
func NewBackend(client goredis.UniversalClient, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

// Open dials the server and checks it answers PING. Unreachable servers and
// rejected credentials yield kv.ErrConnection.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	cfg := opts.withDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, err)
	}
	return NewBackend(client, cfg.KeyPrefix), nil
}

// NewStore opens a connection and wraps it in a kv.NativeStore.
func NewStore(ctx context.Context, opts Options, storeOpts ...kv.Option) (*kv.NativeStore, error) {
	b, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return kv.NewNativeStore(Name, b, storeOpts...), nil
}

func (b *Backend) RawGet(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// RawPut issues a single SET, so value and expiry change together. Redis
// expiry has millisecond resolution; shorter positive timeouts round up.
func (b *Backend) RawPut(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 && ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return b.client.Set(ctx, b.prefix+key, value, ttl).Err()
}

func (b *Backend) RawDelete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.prefix+key).Err()
}

func (b *Backend) RawExists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (b *Backend) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
