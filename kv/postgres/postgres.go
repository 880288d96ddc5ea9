// Package postgres keeps records as rows of a PostgreSQL table. Each row is
// the whole record: key, encoded value, optional expiry and a version drawn
// from a sequence. PostgreSQL has no per-row TTL, so expiry is enforced by
// kv.LazyStore and the cleanup delete is conditional on the version.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adeilh/skvdb/kv"
)

// Name is the backend label used in errors and metrics.
const Name = "postgres"

// Backend implements kv.RecordBackend, kv.ConditionalDeleter and kv.Purger
// over a *sql.DB it owns.
type Backend struct {
	db *sql.DB

	getQuery      string
	putQuery      string
	deleteQuery   string
	deleteIfQuery string
	purgeQuery    string
}

// NewBackend wraps an open database. The table must already exist (see
// Migrate).
func NewBackend(db *sql.DB, table string) (*Backend, error) {
	if !tableName.MatchString(table) {
		return nil, ErrInvalidTable
	}
	t := pq.QuoteIdentifier(table)
	seq := pq.QuoteLiteral(pq.QuoteIdentifier(table + "_version_seq"))
	return &Backend{
		db:       db,
		getQuery: fmt.Sprintf(`SELECT value, expires_at, version FROM %s WHERE key = $1`, t),
		putQuery: fmt.Sprintf(`INSERT INTO %s AS r (key, value, expires_at, version, updated_at)
VALUES ($1, $2, $3, nextval(%s), now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at,
    version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`, t, seq),
		deleteQuery:   fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, t),
		deleteIfQuery: fmt.Sprintf(`DELETE FROM %s WHERE key = $1 AND version = $2`, t),
		purgeQuery:    fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1`, t),
	}, nil
}

// NewStore connects, migrates when enabled and returns a lazily expiring
// store that owns the connection pool.
func NewStore(ctx context.Context, opts []Option, storeOpts ...kv.Option) (*kv.LazyStore, error) {
	cfg := resolve(opts)
	if !tableName.MatchString(cfg.Table) {
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, ErrInvalidTable)
	}
	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := Migrate(ctx, db, cfg.Table); err != nil {
			_ = db.Close()
			return nil, kv.NewError("open", Name, "", kv.ErrConnection, err)
		}
	}
	b, err := NewBackend(db, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, err)
	}
	return kv.NewLazyStore(Name, b, storeOpts...), nil
}

func (b *Backend) RawGet(ctx context.Context, key string) (kv.Record, bool, error) {
	var (
		rec       = kv.Record{Key: key}
		expiresAt sql.NullTime
	)
	err := b.db.QueryRowContext(ctx, b.getQuery, key).Scan(&rec.Value, &expiresAt, &rec.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kv.Record{}, false, nil
		}
		return kv.Record{}, false, translateError("get", key, err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	return rec, true, nil
}

func (b *Backend) RawPut(ctx context.Context, rec kv.Record) error {
	expiresAt := sql.NullTime{Time: rec.ExpiresAt, Valid: !rec.ExpiresAt.IsZero()}
	value := rec.Value
	if value == nil {
		value = []byte{}
	}
	_, err := b.db.ExecContext(ctx, b.putQuery, rec.Key, value, expiresAt)
	return translateError("set", rec.Key, err)
}

func (b *Backend) RawDelete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, b.deleteQuery, key)
	return translateError("delete", key, err)
}

func (b *Backend) RawDeleteIf(ctx context.Context, key string, version int64) (bool, error) {
	res, err := b.db.ExecContext(ctx, b.deleteIfQuery, key, version)
	if err != nil {
		return false, translateError("delete", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, translateError("delete", key, err)
	}
	return affected > 0, nil
}

func (b *Backend) RawPurge(ctx context.Context, now time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, b.purgeQuery, now)
	if err != nil {
		return 0, translateError("purge", "", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, translateError("purge", "", err)
	}
	return int(affected), nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// translateError classifies driver errors. Authorization failures (SQLSTATE
// class 28) are connection problems; everything else raised while a call is
// in flight is a backend operation failure.
func translateError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "28" {
		return kv.NewError(op, Name, key, kv.ErrConnection, err)
	}
	return kv.NewError(op, Name, key, kv.ErrBackend, err)
}
