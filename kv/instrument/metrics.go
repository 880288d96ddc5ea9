// Package instrument records Prometheus metrics for kv stores.
package instrument

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adeilh/skvdb/kv"
)

var errUnsupportedPurge = errors.New("store cannot sweep expired records")

// Metrics holds the collectors shared by every instrumented store.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	expirations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer. Collectors already registered by an
// earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "skvdb",
				Name:      "operations_total",
				Help:      "Store operations by backend, operation and result",
			},
			[]string{"backend", "op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "skvdb",
				Name:      "operation_duration_seconds",
				Help:      "Latency of store operations",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"backend", "op"},
		),
		expirations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "skvdb",
				Name:      "lazy_expirations_total",
				Help:      "Expired records found on read, by cleanup result",
			},
			[]string{"backend", "result"},
		),
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.expirations, err = register(reg, m.expirations); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observer returns a kv.Observer that counts lazy expirations for backend.
func (m *Metrics) Observer(backend string) kv.Observer {
	return expiryObserver{m: m, backend: backend}
}

type expiryObserver struct {
	m       *Metrics
	backend string
}

func (o expiryObserver) Expired(_ string, cleanupErr error) {
	result := "removed"
	if cleanupErr != nil {
		result = "cleanup_failed"
	}
	o.m.expirations.WithLabelValues(o.backend, result).Inc()
}

// Result labels an operation outcome.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, kv.ErrInvalidKey), errors.Is(err, kv.ErrInvalidTimeout), errors.Is(err, kv.ErrNilContext):
		return "invalid"
	case errors.Is(err, kv.ErrClosed):
		return "closed"
	case errors.Is(err, kv.ErrNotSupported):
		return "not_supported"
	case errors.Is(err, kv.ErrConnection):
		return "connection"
	case errors.Is(err, kv.ErrEncoding):
		return "encoding"
	case errors.Is(err, kv.ErrDecoding):
		return "decoding"
	case errors.Is(err, kv.ErrBackend):
		return "backend"
	default:
		return "error"
	}
}
