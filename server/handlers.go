package server

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/adeilh/skvdb/httpx"
	"github.com/adeilh/skvdb/kv"
	"github.com/adeilh/skvdb/kv/remote"
)

const keysPrefix = "/v1/keys/"

// maxTTLMs is the largest ttl_ms that fits in a time.Duration.
const maxTTLMs = math.MaxInt64 / int64(time.Millisecond)

// keyFrom reads the key from the escaped request path so that keys holding
// '/' or '%' survive routing intact.
func keyFrom(c httpx.Context) (string, error) {
	raw := strings.TrimPrefix(c.Request().URL.EscapedPath(), keysPrefix)
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", httpx.HTTPError(httpx.StatusBadRequest, "malformed key")
	}
	if key == "" {
		return "", httpx.HTTPError(httpx.StatusBadRequest, kv.ErrInvalidKey.Error())
	}
	return key, nil
}

func (s *Service) health(c httpx.Context) error {
	return c.String(httpx.StatusOK, "ok")
}

func (s *Service) ping(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]string{"status": "ok", "backend": s.opts.Backend})
}

func (s *Service) getKey(c httpx.Context) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	var value []byte
	ok, err := s.store.Get(c.Request().Context(), key, &value)
	if err != nil {
		return s.storeError(err)
	}
	if !ok {
		return httpx.HTTPError(httpx.StatusNotFound, "key not found")
	}
	return c.JSON(httpx.StatusOK, remote.GetResponse{Value: value})
}

func (s *Service) headKey(c httpx.Context) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	ok, err := s.store.Exists(c.Request().Context(), key)
	if err != nil {
		return s.storeError(err)
	}
	if !ok {
		return c.NoContent(httpx.StatusNotFound)
	}
	return c.NoContent(httpx.StatusOK)
}

func (s *Service) putKey(c httpx.Context) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	var req remote.PutRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.TTLMs < 0 || req.TTLMs > maxTTLMs {
		return httpx.HTTPError(httpx.StatusBadRequest, kv.ErrInvalidTimeout.Error())
	}
	if req.Value == nil {
		req.Value = []byte{}
	}
	timeout := time.Duration(req.TTLMs) * time.Millisecond
	if err := s.store.Set(c.Request().Context(), key, req.Value, timeout); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (s *Service) deleteKey(c httpx.Context) error {
	key, err := keyFrom(c)
	if err != nil {
		return err
	}
	if err := s.store.Delete(c.Request().Context(), key); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(httpx.StatusNoContent)
}

// storeError maps store failures onto HTTP statuses. Only client mistakes
// echo the error text; server-side failures are logged and answered
// generically.
func (s *Service) storeError(err error) error {
	switch {
	case errors.Is(err, kv.ErrInvalidKey), errors.Is(err, kv.ErrInvalidTimeout), errors.Is(err, kv.ErrEncoding):
		return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "request canceled")
	case errors.Is(err, kv.ErrClosed):
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "store is shutting down")
	}

	s.opts.Logger.Errorf("store: %v", err)
	switch {
	case errors.Is(err, kv.ErrDecoding):
		return httpx.HTTPError(httpx.StatusInternalError, "stored value is corrupt")
	case errors.Is(err, kv.ErrConnection), errors.Is(err, kv.ErrBackend):
		return httpx.HTTPError(httpx.StatusBadGateway, "backend operation failed")
	default:
		return httpx.HTTPError(httpx.StatusInternalError, "internal error")
	}
}
