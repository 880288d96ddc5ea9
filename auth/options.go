package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrTokenNotFound     = errors.New("auth: token not found")
	ErrTokenInvalidInput = errors.New("auth: invalid token source")
)

type TokenExtractor func(*http.Request) (string, error)

type MiddlewareSkipper func(*http.Request) bool

type MiddlewareErrorHandler func(http.ResponseWriter, *http.Request, error)

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	verifier     TokenVerifier
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

func newMiddlewareConfig(verifier TokenVerifier, opts ...MiddlewareOption) (middlewareConfig, error) {
	if verifier == nil {
		return middlewareConfig{}, errors.New("auth: middleware requires a token verifier")
	}
	cfg := middlewareConfig{
		verifier:     verifier,
		extractor:    BearerTokenExtractor(),
		skipper:      defaultSkipper,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.extractor == nil {
		cfg.extractor = BearerTokenExtractor()
	}
	if cfg.skipper == nil {
		cfg.skipper = defaultSkipper
	}
	if cfg.errorHandler == nil {
		cfg.errorHandler = defaultErrorHandler
	}
	return cfg, nil
}

func WithTokenExtractor(extractor TokenExtractor) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if extractor != nil {
			cfg.extractor = extractor
		}
	}
}

func WithSkipper(skipper MiddlewareSkipper) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if skipper != nil {
			cfg.skipper = skipper
		}
	}
}

func WithErrorHandler(handler MiddlewareErrorHandler) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if handler != nil {
			cfg.errorHandler = handler
		}
	}
}

func BearerTokenExtractor() TokenExtractor {
	return func(r *http.Request) (string, error) {
		header := r.Header.Get("Authorization")
		if header == "" {
			return "", ErrTokenNotFound
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", ErrTokenInvalidInput
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", ErrTokenInvalidInput
		}
		return token, nil
	}
}

// SkipPaths lets requests for the exact given paths through unauthenticated.
func SkipPaths(paths ...string) MiddlewareSkipper {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

func defaultSkipper(*http.Request) bool { return false }

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="skvdb"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
