package httpx

import (
	"net/http"

	"github.com/adeilh/skvdb/auth"
)

// AuthMiddleware runs an auth.Middleware in front of echo handlers. The
// downstream handler's error is returned to echo's error handler.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var handlerErr error
			downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				handlerErr = next(c)
			})
			mw.Handler(downstream).ServeHTTP(c.Response(), c.Request())
			return handlerErr
		}
	}
}
