package kv

import (
	"time"

	"github.com/labstack/gommon/log"
)

// Logger is the subset of github.com/labstack/gommon/log.Logger the stores
// write to.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Observer is notified whenever a read finds an expired record. cleanupErr is
// the error of the lazy delete, nil when the record was removed.
type Observer interface {
	Expired(key string, cleanupErr error)
}

type options struct {
	codec    Codec
	now      func() time.Time
	logger   Logger
	observer Observer
}

// Option configures NativeStore and LazyStore.
type Option func(*options)

// WithCodec replaces the default JSONCodec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithClock overrides time.Now; tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for cleanup diagnostics.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an Observer for lazy expirations.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func newOptions(opts []Option) options {
	cfg := options{
		codec:  JSONCodec{},
		now:    time.Now,
		logger: log.New("kv"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
