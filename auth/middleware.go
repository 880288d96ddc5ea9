package auth

import (
	"context"
	"net/http"
)

type Middleware struct {
	verifier     TokenVerifier
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

type principalKey struct{}

func NewMiddleware(verifier TokenVerifier, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(verifier, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		verifier:     cfg.verifier,
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
	}, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := m.extractor(r)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}

		principal, err := m.verifier.VerifyToken(r.Context(), raw)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
