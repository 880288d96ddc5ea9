// Command skvd serves a kv.Store over HTTP.
//
// Backend connection settings come from SKVDB_* environment variables; see
// backend.ConfigFromEnv. Run "skvd hash-token <token>" to produce a bcrypt
// hash for -token-hash.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/adeilh/skvdb/auth"
	"github.com/adeilh/skvdb/httpx"
	"github.com/adeilh/skvdb/kv"
	"github.com/adeilh/skvdb/kv/backend"
	"github.com/adeilh/skvdb/kv/instrument"
	"github.com/adeilh/skvdb/server"
)

type config struct {
	Addr          string
	Backend       string
	TokenHashes   string
	PurgeInterval time.Duration
	MaxBodySize   string
	LogLevel      string
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	raw := envOr(name, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	return d, nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-token" {
		os.Exit(hashToken(os.Args[2:]))
	}

	purgeInterval, err := envDuration("SKVD_PURGE_INTERVAL", time.Minute)
	if err != nil {
		fmt.Fprintln(os.Stderr, "skvd:", err)
		os.Exit(2)
	}

	var cfg config
	flag.StringVar(&cfg.Addr, "addr", envOr("SKVD_ADDR", ":8080"), "Listen address")
	flag.StringVar(&cfg.Backend, "backend", envOr("SKVD_BACKEND", string(backend.Memory)), "Storage backend: "+backendList())
	flag.StringVar(&cfg.TokenHashes, "token-hash", envOr("SKVD_TOKEN_HASH", ""), "Comma separated bcrypt token hashes, optionally name=hash; empty disables auth")
	flag.DurationVar(&cfg.PurgeInterval, "purge-interval", purgeInterval, "Sweep interval for expired records; 0 disables sweeping")
	flag.StringVar(&cfg.MaxBodySize, "max-body", envOr("SKVD_MAX_BODY", "4M"), "Largest accepted PUT body")
	flag.StringVar(&cfg.LogLevel, "log-level", envOr("SKVD_LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.Parse()

	logger := log.New("skvd")
	logger.SetLevel(parseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("skvd: %v", err)
		os.Exit(1)
	}
	logger.Info("skvd: stopped")
}

func run(ctx context.Context, cfg config, logger *log.Logger) error {
	name, err := backend.Parse(cfg.Backend)
	if err != nil {
		return err
	}
	backendCfg, err := backend.ConfigFromEnv(backend.DefaultEnvPrefix)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := instrument.NewMetrics(reg)
	if err != nil {
		return err
	}

	store, err := backend.Open(ctx, string(name), backendCfg,
		kv.WithCodec(kv.RawCodec{}),
		kv.WithLogger(logger),
		kv.WithObserver(metrics.Observer(string(name))),
	)
	if err != nil {
		return err
	}
	instrumented := metrics.Wrap(string(name), store)
	defer func() {
		if err := instrumented.Close(); err != nil {
			logger.Warnf("skvd: closing %s store: %v", name, err)
		}
	}()

	opts := server.Options{
		Backend:     string(name),
		Gatherer:    reg,
		MaxBodySize: cfg.MaxBodySize,
		Logger:      logger,
	}
	if hashes := auth.ParseHashedTokens(cfg.TokenHashes); len(hashes) > 0 {
		verifier, err := auth.NewBcryptVerifier(hashes...)
		if err != nil {
			return fmt.Errorf("token hashes: %w", err)
		}
		opts.Verifier = verifier
	} else {
		logger.Warn("skvd: no token hashes configured, authentication disabled")
	}

	svc := server.New(instrumented, opts)
	srv, err := svc.NewServer(httpx.WithAddress(cfg.Addr))
	if err != nil {
		return err
	}

	go svc.PurgeLoop(ctx, cfg.PurgeInterval)

	logger.Infof("skvd: serving %s backend on %s", name, cfg.Addr)
	return srv.Start(ctx)
}

func hashToken(args []string) int {
	fs := flag.NewFlagSet("hash-token", flag.ExitOnError)
	cost := fs.Int("cost", 12, "bcrypt cost")
	generate := fs.Bool("generate", false, "Generate a random token instead of reading one")
	_ = fs.Parse(args)

	token := strings.TrimSpace(fs.Arg(0))
	if *generate {
		t, err := auth.GenerateToken(32)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		token = t
		fmt.Println("token:", token)
	}
	hash, err := auth.HashToken(token, *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: skvd hash-token [-cost n] [-generate] <token>:", err)
		return 2
	}
	fmt.Println(hash)
	return 0
}

func backendList() string {
	names := make([]string, 0, len(backend.Backends()))
	for _, n := range backend.Backends() {
		names = append(names, string(n))
	}
	return strings.Join(names, ", ")
}

func parseLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
