// Package bolt stores records in a single bbolt file. bbolt has no notion of
// expiry, so every value carries a small header with its expiry and version
// and the lazy store enforces the timeout on read.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/adeilh/skvdb/kv"
)

// Name is the backend label used in errors and metrics.
const Name = "bolt"

// headerSize covers the big-endian expiry (unix nanoseconds, 0 = never)
// followed by the big-endian version.
const headerSize = 16

var errBucketMissing = errors.New("bolt: bucket missing")

// Options controls where and how the database file is opened.
type Options struct {
	Path     string
	Bucket   string
	Timeout  time.Duration
	FileMode os.FileMode
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "skvdb.db"
	}
	if o.Bucket == "" {
		o.Bucket = "skvdb"
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	if o.FileMode == 0 {
		o.FileMode = 0o600
	}
	return o
}

// Backend implements kv.RecordBackend, kv.ConditionalDeleter and kv.Purger.
type Backend struct {
	db     *bbolt.DB
	bucket []byte
}

// Open opens or creates the database file. Failures surface as
// kv.ErrConnection.
func Open(opts Options) (*Backend, error) {
	cfg := opts.withDefaults()
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, kv.NewError("open", Name, "", kv.ErrConnection, err)
		}
	}
	db, err := bbolt.Open(cfg.Path, cfg.FileMode, &bbolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, err)
	}
	bucket := []byte(cfg.Bucket)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, err)
	}
	return &Backend{db: db, bucket: bucket}, nil
}

// NewStore opens the file and wraps it in a lazily expiring store.
func NewStore(opts Options, storeOpts ...kv.Option) (*kv.LazyStore, error) {
	b, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return kv.NewLazyStore(Name, b, storeOpts...), nil
}

func (b *Backend) RawGet(ctx context.Context, key string) (kv.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return kv.Record{}, false, err
	}
	var (
		rec   kv.Record
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return errBucketMissing
		}
		raw := bk.Get([]byte(key))
		if raw == nil {
			return nil
		}
		decoded, err := decodeRecord(key, raw)
		if err != nil {
			return err
		}
		rec, found = decoded, true
		return nil
	})
	if err != nil {
		return kv.Record{}, false, err
	}
	return rec, found, nil
}

func (b *Backend) RawPut(ctx context.Context, rec kv.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return errBucketMissing
		}
		version, err := bk.NextSequence()
		if err != nil {
			return err
		}
		rec.Version = int64(version)
		return bk.Put([]byte(rec.Key), encodeRecord(rec))
	})
}

func (b *Backend) RawDelete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return errBucketMissing
		}
		return bk.Delete([]byte(key))
	})
}

// RawDeleteIf compares and deletes inside one write transaction, so a newer
// record can never be removed by mistake.
func (b *Backend) RawDeleteIf(ctx context.Context, key string, version int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return errBucketMissing
		}
		raw := bk.Get([]byte(key))
		if len(raw) < headerSize {
			return nil
		}
		if int64(binary.BigEndian.Uint64(raw[8:16])) != version {
			return nil
		}
		deleted = true
		return bk.Delete([]byte(key))
	})
	return deleted, err
}

func (b *Backend) RawPurge(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return errBucketMissing
		}
		var stale [][]byte
		if err := bk.ForEach(func(k, v []byte) error {
			if len(v) < headerSize {
				return nil
			}
			if !kv.IsLive(expiryFromHeader(v), now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

// Close closes the database file.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// maxExpiry is the latest instant the header can hold; later expiries are
// clamped to it.
var maxExpiry = time.Unix(0, math.MaxInt64)

func encodeRecord(rec kv.Record) []byte {
	buf := make([]byte, headerSize+len(rec.Value))
	var expires int64
	switch {
	case rec.ExpiresAt.IsZero():
	case rec.ExpiresAt.After(maxExpiry):
		expires = math.MaxInt64
	default:
		expires = rec.ExpiresAt.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[:8], uint64(expires))
	binary.BigEndian.PutUint64(buf[8:16], uint64(rec.Version))
	copy(buf[headerSize:], rec.Value)
	return buf
}

func decodeRecord(key string, raw []byte) (kv.Record, error) {
	if len(raw) < headerSize {
		return kv.Record{}, kv.NewError("get", Name, key, kv.ErrDecoding,
			fmt.Errorf("record is %d bytes, shorter than its %d byte header", len(raw), headerSize))
	}
	return kv.Record{
		Key:       key,
		Value:     append([]byte(nil), raw[headerSize:]...),
		ExpiresAt: expiryFromHeader(raw),
		Version:   int64(binary.BigEndian.Uint64(raw[8:16])),
	}, nil
}

func expiryFromHeader(raw []byte) time.Time {
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
