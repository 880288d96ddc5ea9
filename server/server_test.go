package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adeilh/skvdb/auth"
	"github.com/adeilh/skvdb/httpx"
	"github.com/adeilh/skvdb/kv"
	"github.com/adeilh/skvdb/kv/instrument"
	"github.com/adeilh/skvdb/kv/kvtest"
	"github.com/adeilh/skvdb/kv/memory"
	"github.com/adeilh/skvdb/kv/remote"
)

type fixture struct {
	backend *memory.Backend
	clock   *kvtest.Clock
	url     string
}

func quietLogger() *log.Logger {
	l := log.New("skvd-test")
	l.SetLevel(log.OFF)
	return l
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	clock := kvtest.NewClock()
	backend := memory.NewBackend(memory.Options{})
	store := kv.NewLazyStore(memory.Name, backend, kv.WithCodec(kv.RawCodec{}), kv.WithClock(clock.Now))
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}

	srv, err := New(store, opts).NewServer(httpx.WithMiddlewares(httpx.RecoverMiddleware()))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httpx.NewTestServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = store.Close()
	})
	return fixture{backend: backend, clock: clock, url: ts.BaseURL()}
}

func keyOpt(key string) httpx.RequestOption {
	return httpx.WithPathParams(map[string]string{"key": key})
}

func statusOf(err error) int {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	if err == nil {
		return http.StatusOK
	}
	return -1
}

func TestKeyLifecycle(t *testing.T) {
	f := newFixture(t, Options{Backend: "memory"})
	client := httpx.NewClient(httpx.WithBaseURL(f.url))
	ctx := context.Background()
	key := "users/42 profile"

	if _, err := client.Put(ctx, "/v1/keys/{key}", remote.PutRequest{Value: []byte(`{"n":1}`), TTLMs: 2000}, nil, keyOpt(key)); err != nil {
		t.Fatalf("PUT error = %v", err)
	}
	if !f.backend.Has(key) {
		t.Fatalf("key %q was not stored verbatim", key)
	}

	var got remote.GetResponse
	if _, err := client.Get(ctx, "/v1/keys/{key}", &got, keyOpt(key)); err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if string(got.Value) != `{"n":1}` {
		t.Fatalf("GET value = %q", got.Value)
	}
	if _, err := client.Head(ctx, "/v1/keys/{key}", keyOpt(key)); err != nil {
		t.Fatalf("HEAD error = %v", err)
	}

	f.clock.Advance(2 * time.Second)
	if _, err := client.Head(ctx, "/v1/keys/{key}", keyOpt(key)); statusOf(err) != http.StatusNotFound {
		t.Fatalf("HEAD after expiry error = %v, want 404", err)
	}
	if _, err := client.Get(ctx, "/v1/keys/{key}", nil, keyOpt(key)); statusOf(err) != http.StatusNotFound {
		t.Fatalf("GET after expiry error = %v, want 404", err)
	}
	if f.backend.Has(key) {
		t.Fatalf("expired key still held after read")
	}

	if _, err := client.Put(ctx, "/v1/keys/{key}", remote.PutRequest{Value: []byte("1")}, nil, keyOpt(key)); err != nil {
		t.Fatalf("PUT error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := client.Delete(ctx, "/v1/keys/{key}", nil, keyOpt(key)); err != nil {
			t.Fatalf("DELETE #%d error = %v", i+1, err)
		}
	}
	if f.backend.Has(key) {
		t.Fatalf("deleted key still held")
	}
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, Options{MaxBodySize: "1K"})
	client := httpx.NewClient(httpx.WithBaseURL(f.url))
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want int
	}{
		{
			name: "empty key",
			call: func() error {
				_, err := client.Get(ctx, "/v1/keys/", nil)
				return err
			},
			want: http.StatusBadRequest,
		},
		{
			name: "negative ttl",
			call: func() error {
				_, err := client.Put(ctx, "/v1/keys/k", remote.PutRequest{Value: []byte("1"), TTLMs: -5}, nil)
				return err
			},
			want: http.StatusBadRequest,
		},
		{
			name: "ttl beyond duration range",
			call: func() error {
				_, err := client.Put(ctx, "/v1/keys/k", remote.PutRequest{Value: []byte("1"), TTLMs: maxTTLMs + 1}, nil)
				return err
			},
			want: http.StatusBadRequest,
		},
		{
			name: "malformed body",
			call: func() error {
				_, err := client.Put(ctx, "/v1/keys/k", "{not json", nil)
				return err
			},
			want: http.StatusBadRequest,
		},
		{
			name: "body too large",
			call: func() error {
				_, err := client.Put(ctx, "/v1/keys/k", remote.PutRequest{Value: []byte(strings.Repeat("x", 4096))}, nil)
				return err
			},
			want: http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOf(tt.call()); got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	hash, err := auth.HashToken("s3cret", 4)
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	verifier, err := auth.NewBcryptVerifier(auth.HashedToken{Name: "ci", Hash: hash})
	if err != nil {
		t.Fatalf("NewBcryptVerifier() error = %v", err)
	}
	f := newFixture(t, Options{Verifier: verifier, Gatherer: prometheus.NewRegistry()})
	ctx := context.Background()

	anon := httpx.NewClient(httpx.WithBaseURL(f.url))
	if _, err := anon.Get(ctx, "/v1/ping", nil); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("anonymous ping error = %v, want 401", err)
	}
	for _, path := range []string{"/healthz", "/metrics"} {
		if _, err := anon.Get(ctx, path, nil); err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
	}

	authed := httpx.NewClient(httpx.WithBaseURL(f.url), httpx.WithBearerToken("s3cret"))
	var pong map[string]string
	if _, err := authed.Get(ctx, "/v1/ping", &pong); err != nil {
		t.Fatalf("ping error = %v", err)
	}
	if pong["status"] != "ok" || pong["backend"] != "unknown" {
		t.Fatalf("ping = %v", pong)
	}
}

type failingStore struct {
	kv.Store
	err error
}

func (s failingStore) Get(context.Context, string, any) (bool, error) { return false, s.err }

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{kv.NewError("get", "x", "k", kv.ErrConnection, errors.New("dial")), http.StatusBadGateway},
		{kv.NewError("get", "x", "k", kv.ErrBackend, errors.New("io")), http.StatusBadGateway},
		{kv.NewError("get", "x", "k", kv.ErrDecoding, errors.New("bad")), http.StatusInternalServerError},
		{kv.ErrClosed, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{kv.ErrInvalidKey, http.StatusBadRequest},
		{errors.New("surprise"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			srv, err := New(failingStore{err: tt.err}, Options{Logger: quietLogger()}).NewServer()
			if err != nil {
				t.Fatalf("NewServer() error = %v", err)
			}
			ts := httpx.NewTestServer(srv.Handler())
			defer ts.Close()

			_, err = httpx.NewClient(httpx.WithBaseURL(ts.BaseURL())).Get(context.Background(), "/v1/keys/k", nil)
			if got := statusOf(err); got != tt.want {
				t.Fatalf("status = %d, want %d (%v)", got, tt.want, err)
			}
		})
	}
}

func TestPurgeLoop(t *testing.T) {
	clock := kvtest.NewClock()
	backend := memory.NewBackend(memory.Options{})
	m, err := instrument.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	store := m.Wrap(memory.Name, kv.NewLazyStore(memory.Name, backend, kv.WithClock(clock.Now)))
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Set(ctx, "a", 1, time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clock.Advance(2 * time.Second)

	done := make(chan struct{})
	go func() {
		New(store, Options{Logger: quietLogger()}).PurgeLoop(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for backend.Has("a") {
		if time.Now().After(deadline) {
			t.Fatalf("expired record was never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("PurgeLoop did not stop after cancel")
	}
}

func TestPurgeLoopStopsWithoutSweeper(t *testing.T) {
	done := make(chan struct{})
	go func() {
		New(kv.NewNativeStore("native", nil), Options{Logger: quietLogger()}).PurgeLoop(context.Background(), time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("PurgeLoop kept running for a store that cannot sweep")
	}
}
