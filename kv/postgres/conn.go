package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"github.com/adeilh/skvdb/kv"
)

// DefaultTable holds records unless WithTable says otherwise.
const DefaultTable = "skvdb_records"

var (
	ErrMissingDSN   = errors.New("postgres: DSN is required")
	ErrInvalidTable = errors.New("postgres: table name must be a plain identifier")
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Open connects to PostgreSQL, applies pool settings and pings the server.
// A server that cannot be reached or rejects the credentials yields
// kv.ErrConnection.
func Open(ctx context.Context, opts ...Option) (*sql.DB, error) {
	cfg := resolve(opts)
	return open(ctx, cfg)
}

func resolve(opts []Option) Options {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func open(ctx context.Context, cfg Options) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, ErrMissingDSN)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, fmt.Errorf("postgres: open: %w", err))
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, fmt.Errorf("postgres: ping: %w", err))
	}

	return db, nil
}

// Migrate creates the record table, its version sequence and the expiry
// index if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, table string) error {
	if !tableName.MatchString(table) {
		return ErrInvalidTable
	}
	return ApplyMigrations(ctx, db, Schema(table)...)
}

// ApplyMigrations executes the provided SQL statements in order.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// Schema returns the DDL for a record table.
func Schema(table string) []string {
	t := pq.QuoteIdentifier(table)
	seq := pq.QuoteIdentifier(table + "_version_seq")
	idx := pq.QuoteIdentifier(table + "_expires_at_idx")
	return []string{
		fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s`, seq),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    expires_at TIMESTAMPTZ NULL,
    version    BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (expires_at) WHERE expires_at IS NOT NULL`, idx, t),
	}
}
