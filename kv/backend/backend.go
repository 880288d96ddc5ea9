// Package backend opens a kv.Store by backend identifier. The set of
// identifiers is closed; anything else is kv.ErrNotSupported.
package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adeilh/skvdb/kv"
	"github.com/adeilh/skvdb/kv/bolt"
	"github.com/adeilh/skvdb/kv/memory"
	"github.com/adeilh/skvdb/kv/postgres"
	"github.com/adeilh/skvdb/kv/redis"
	"github.com/adeilh/skvdb/kv/remote"
)

// Name identifies a backend.
type Name string

const (
	Redis    Name = redis.Name
	Postgres Name = postgres.Name
	Bolt     Name = bolt.Name
	Memory   Name = memory.Name
	Remote   Name = remote.Name
)

type factory func(ctx context.Context, cfg Config, opts []kv.Option) (kv.Store, error)

var registry = map[Name]factory{
	Redis:    openRedis,
	Postgres: openPostgres,
	Bolt:     openBolt,
	Memory:   openMemory,
	Remote:   openRemote,
}

// Backends lists the supported identifiers in a stable order.
func Backends() []Name {
	return []Name{Redis, Postgres, Bolt, Memory, Remote}
}

// Parse normalises s into a Name, failing with kv.ErrNotSupported when it
// names no backend.
func Parse(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[n]; !ok {
		return "", kv.NewError("open", string(n), "", kv.ErrNotSupported, fmt.Errorf("unknown backend %q", s))
	}
	return n, nil
}

// Open establishes a session with the named backend. Store options such as
// kv.WithCodec apply to the returned store.
func Open(ctx context.Context, name string, cfg Config, opts ...kv.Option) (kv.Store, error) {
	n, err := Parse(name)
	if err != nil {
		return nil, err
	}
	return registry[n](ctx, cfg, opts)
}

// asStore keeps a nil concrete store from turning into a non-nil kv.Store.
func asStore[S kv.Store](s S, err error) (kv.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRedis(ctx context.Context, cfg Config, opts []kv.Option) (kv.Store, error) {
	db := 0
	if cfg.Database != "" {
		n, err := strconv.Atoi(cfg.Database)
		if err != nil || n < 0 {
			return nil, kv.NewError("open", redis.Name, "", kv.ErrConnection, fmt.Errorf("database must be a number, got %q", cfg.Database))
		}
		db = n
	}
	return asStore(redis.NewStore(ctx, redis.Options{
		Addr:        cfg.hostPort("127.0.0.1", 6379),
		Username:    cfg.User,
		Password:    cfg.Password,
		DB:          db,
		DialTimeout: cfg.DialTimeout,
		KeyPrefix:   cfg.Table,
	}, opts...))
}

func openPostgres(ctx context.Context, cfg Config, opts []kv.Option) (kv.Store, error) {
	dsn := cfg.URL
	if dsn == "" {
		database := cfg.Database
		if database == "" {
			database = "skvdb"
		}
		dsn = postgres.BuildDSN(postgres.DSNParams{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Database: database,
			User:     cfg.User,
			Password: cfg.Password,
			Timeout:  cfg.DialTimeout,
		})
	}
	return asStore(postgres.NewStore(ctx, []postgres.Option{
		postgres.WithDSN(dsn),
		postgres.WithTable(cfg.Table),
	}, opts...))
}

func openBolt(_ context.Context, cfg Config, opts []kv.Option) (kv.Store, error) {
	return asStore(bolt.NewStore(bolt.Options{
		Path:    cfg.Path,
		Bucket:  cfg.Table,
		Timeout: cfg.DialTimeout,
	}, opts...))
}

func openMemory(_ context.Context, cfg Config, opts []kv.Option) (kv.Store, error) {
	return memory.NewStore(memory.Options{Shards: cfg.Shards}, opts...), nil
}

func openRemote(ctx context.Context, cfg Config, opts []kv.Option) (kv.Store, error) {
	return asStore(remote.NewStore(ctx, remote.Options{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Timeout: cfg.DialTimeout,
	}, opts...))
}
