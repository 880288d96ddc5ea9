// Package server exposes a kv.Store as the skvd HTTP service. The wire
// format is the one kv/remote speaks.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adeilh/skvdb/auth"
	"github.com/adeilh/skvdb/httpx"
	"github.com/adeilh/skvdb/kv"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

// Options configures a Service.
type Options struct {
	// Backend labels the store in /v1/ping responses.
	Backend string
	// Verifier guards every route except /healthz and /metrics. Nil
	// disables authentication.
	Verifier auth.TokenVerifier
	// Gatherer backs /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
	// MaxBodySize caps PUT bodies, in echo's size notation.
	MaxBodySize string
	Logger      *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Backend == "" {
		o.Backend = "unknown"
	}
	if o.MaxBodySize == "" {
		o.MaxBodySize = "4M"
	}
	if o.Logger == nil {
		o.Logger = log.New("skvd")
	}
	return o
}

// Service serves one store. The store must use kv.RawCodec: the service
// keeps client payloads as opaque bytes.
type Service struct {
	store kv.Store
	opts  Options
}

func New(store kv.Store, opts Options) *Service {
	return &Service{store: store, opts: opts.withDefaults()}
}

// NewServer builds an httpx.Server with the service routes and, when a
// verifier is configured, bearer authentication.
func (s *Service) NewServer(serverOpts ...httpx.ServerOption) (*httpx.Server, error) {
	opts := append([]httpx.ServerOption{
		httpx.WithLogger(s.opts.Logger),
		httpx.WithMiddlewares(httpx.RecoverMiddleware(), httpx.LoggerMiddleware(healthPath, metricsPath)),
	}, serverOpts...)

	if s.opts.Verifier != nil {
		mw, err := auth.NewMiddleware(s.opts.Verifier, auth.WithSkipper(auth.SkipPaths(healthPath, metricsPath)))
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpx.AppendMiddlewares(httpx.AuthMiddleware(mw)))
	}

	srv := httpx.NewServer(opts...)
	srv.RegisterRoutes(s.Routes)
	return srv, nil
}

// Routes registers the service endpoints.
func (s *Service) Routes(e *httpx.Echo) {
	e.GET(healthPath, s.health)
	if s.opts.Gatherer != nil {
		e.Handle(metricsPath, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	v1 := e.Group("/v1")
	v1.GET("/ping", s.ping)
	v1.GET("/keys/*", s.getKey)
	v1.HEAD("/keys/*", s.headKey)
	v1.PUT("/keys/*", s.putKey, httpx.BodyLimitMiddleware(s.opts.MaxBodySize))
	v1.DELETE("/keys/*", s.deleteKey)
}

type purger interface {
	Purge(ctx context.Context) (int, error)
}

// PurgeLoop sweeps expired records every interval until ctx is done. It
// returns at once when interval is not positive or the store cannot sweep.
func (s *Service) PurgeLoop(ctx context.Context, interval time.Duration) {
	p, ok := s.store.(purger)
	if !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			switch {
			case errors.Is(err, kv.ErrNotSupported):
				s.opts.Logger.Infof("purge: %s backend expires keys itself, sweeping disabled", s.opts.Backend)
				return
			case err != nil && ctx.Err() == nil:
				s.opts.Logger.Warnf("purge: %v", err)
			case n > 0:
				s.opts.Logger.Debugf("purge: removed %d expired records", n)
			}
		}
	}
}
