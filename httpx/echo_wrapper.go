package httpx

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Context aliases echo.Context so callers can stay within httpx imports.
type Context = echo.Context

// HandlerFunc aliases echo.HandlerFunc.
type HandlerFunc = echo.HandlerFunc

// MiddlewareFunc aliases echo.MiddlewareFunc.
type MiddlewareFunc = echo.MiddlewareFunc

// Echo is a minimal wrapper exposing the underlying Echo instance when needed.
type Echo struct{ *echo.Echo }

// NewEcho creates a new Echo instance wrapped in httpx.Echo.
func NewEcho() *Echo { return &Echo{echo.New()} }

// Use attaches middleware to the Echo instance.
func (e *Echo) Use(mw ...MiddlewareFunc) { e.Echo.Use(mw...) }

// Group creates a route group with an optional prefix and middleware stack.
func (e *Echo) Group(prefix string, mw ...MiddlewareFunc) *echo.Group {
	return e.Echo.Group(prefix, mw...)
}

// RecoverMiddleware returns Echo's recover middleware.
func RecoverMiddleware() MiddlewareFunc { return middleware.Recover() }

// LoggerMiddleware returns Echo's logger middleware. Requests whose path is
// listed in quiet are not logged.
func LoggerMiddleware(quiet ...string) MiddlewareFunc {
	if len(quiet) == 0 {
		return middleware.Logger()
	}
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}
	return middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c Context) bool {
			_, ok := skip[c.Request().URL.Path]
			return ok
		},
	})
}

// BodyLimitMiddleware rejects request bodies larger than limit ("1M", "64K")
// with 413.
func BodyLimitMiddleware(limit string) MiddlewareFunc { return middleware.BodyLimit(limit) }

// GET registers a GET route.
func (e *Echo) GET(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	e.Echo.GET(path, h, mw...)
}

// HEAD registers a HEAD route.
func (e *Echo) HEAD(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	e.Echo.HEAD(path, h, mw...)
}

// PUT registers a PUT route.
func (e *Echo) PUT(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	e.Echo.PUT(path, h, mw...)
}

// DELETE registers a DELETE route.
func (e *Echo) DELETE(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	e.Echo.DELETE(path, h, mw...)
}

// Handle mounts a plain net/http handler for GET requests.
func (e *Echo) Handle(path string, h http.Handler) {
	e.Echo.GET(path, echo.WrapHandler(h))
}

// HTTPError constructs an HTTPError without importing echo in callers.
func HTTPError(code int, message any) error { return echo.NewHTTPError(code, message) }
