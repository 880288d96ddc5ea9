// Package remote talks to a skvd key-value service over HTTP. The service
// owns expiry, so this is a kv.TTLBackend: timeouts travel with each write
// and reads never see an expired key.
package remote

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adeilh/skvdb/httpx"
	"github.com/adeilh/skvdb/kv"
)

// Name is the backend label used in errors and metrics.
const Name = "remote"

const (
	keyPath  = "/v1/keys/{key}"
	pingPath = "/v1/ping"
)

// ErrMissingURL is wrapped in the connection error returned by Open when no
// service URL is configured.
var ErrMissingURL = errors.New("remote: service URL is required")

// Options configures the HTTP client.
type Options struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retries int
}

func (o Options) withDefaults() Options {
	o.URL = strings.TrimRight(strings.TrimSpace(o.URL), "/")
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// PutRequest is the body of a write.
type PutRequest struct {
	Value []byte `json:"value"`
	TTLMs int64  `json:"ttl_ms,omitempty"`
}

// GetResponse is the body of a successful read.
type GetResponse struct {
	Value []byte `json:"value"`
}

// Backend implements kv.TTLBackend against the service.
type Backend struct {
	client *httpx.Client
}

// Open builds the client and pings the service. An unreachable service or a
// rejected token yields kv.ErrConnection.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	cfg := opts.withDefaults()
	if cfg.URL == "" {
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, ErrMissingURL)
	}
	b := &Backend{client: httpx.NewClient(
		httpx.WithBaseURL(cfg.URL),
		httpx.WithClientTimeout(cfg.Timeout),
		httpx.WithBearerToken(cfg.Token),
		httpx.WithRetries(cfg.Retries, 0),
	)}
	if _, err := b.client.Get(ctx, pingPath, nil); err != nil {
		return nil, kv.NewError("open", Name, "", kv.ErrConnection, err)
	}
	return b, nil
}

// NewStore opens the backend and wraps it in a kv.NativeStore.
func NewStore(ctx context.Context, opts Options, storeOpts ...kv.Option) (*kv.NativeStore, error) {
	b, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return kv.NewNativeStore(Name, b, storeOpts...), nil
}

func keyParam(key string) httpx.RequestOption {
	return httpx.WithPathParams(map[string]string{"key": key})
}

func (b *Backend) RawGet(ctx context.Context, key string) ([]byte, bool, error) {
	var out GetResponse
	_, err := b.client.Get(ctx, keyPath, &out, keyParam(key))
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translateError("get", key, err)
	}
	if out.Value == nil {
		out.Value = []byte{}
	}
	return out.Value, true, nil
}

// RawPut sends the timeout in milliseconds. Positive timeouts shorter than a
// millisecond round up.
func (b *Backend) RawPut(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	req := PutRequest{Value: value}
	if ttl > 0 {
		req.TTLMs = ttl.Milliseconds()
		if req.TTLMs == 0 {
			req.TTLMs = 1
		}
	}
	_, err := b.client.Put(ctx, keyPath, req, nil, keyParam(key))
	return translateError("set", key, err)
}

func (b *Backend) RawDelete(ctx context.Context, key string) error {
	_, err := b.client.Delete(ctx, keyPath, nil, keyParam(key))
	if isNotFound(err) {
		return nil
	}
	return translateError("delete", key, err)
}

func (b *Backend) RawExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.Head(ctx, keyPath, keyParam(key))
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, translateError("exists", key, err)
	}
	return true, nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (b *Backend) Close() error { return nil }

func isNotFound(err error) bool {
	var se *httpx.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// translateError maps service responses onto the kv error kinds. Rejected
// credentials are connection problems; everything else is a backend failure.
func translateError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden {
			return kv.NewError(op, Name, key, kv.ErrConnection, err)
		}
	}
	return kv.NewError(op, Name, key, kv.ErrBackend, err)
}
