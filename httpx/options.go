package httpx

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// HTTPErrorHandler is a function that handles errors during request processing.
type HTTPErrorHandler = echo.HTTPErrorHandler

type ServerOptions struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Middlewares  []MiddlewareFunc
	ErrorHandler HTTPErrorHandler
	Logger       *log.Logger
}

type ServerOption func(*ServerOptions)

func defaultServerOptions() ServerOptions {
	return ServerOptions{
		Address:      ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		Middlewares:  []MiddlewareFunc{RecoverMiddleware(), LoggerMiddleware()},
		ErrorHandler: defaultHTTPErrorHandler,
	}
}

func WithAddress(addr string) ServerOption {
	return func(o *ServerOptions) {
		if addr != "" {
			o.Address = addr
		}
	}
}

func WithTimeouts(read, write time.Duration) ServerOption {
	return func(o *ServerOptions) {
		if read > 0 {
			o.ReadTimeout = read
		}
		if write > 0 {
			o.WriteTimeout = write
		}
	}
}

func WithMiddlewares(mw ...MiddlewareFunc) ServerOption {
	return func(o *ServerOptions) {
		if len(mw) > 0 {
			o.Middlewares = append([]MiddlewareFunc{}, mw...)
		}
	}
}

// AppendMiddlewares appends additional middleware to the existing stack.
func AppendMiddlewares(mw ...MiddlewareFunc) ServerOption {
	return func(o *ServerOptions) {
		if len(mw) > 0 {
			o.Middlewares = append(o.Middlewares, mw...)
		}
	}
}

func WithErrorHandler(handler HTTPErrorHandler) ServerOption {
	return func(o *ServerOptions) {
		if handler != nil {
			o.ErrorHandler = handler
		}
	}
}

// WithLogger replaces echo's logger.
func WithLogger(l *log.Logger) ServerOption {
	return func(o *ServerOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

type ClientOptions struct {
	BaseURL      string
	Timeout      time.Duration
	Headers      map[string]string
	BearerToken  string
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

type ClientOption func(*ClientOptions)

func defaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:      10 * time.Second,
		Headers:      map[string]string{"Content-Type": "application/json"},
		RetryWait:    100 * time.Millisecond,
		RetryMaxWait: 2 * time.Second,
	}
}

func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		if url != "" {
			o.BaseURL = url
		}
	}
}

func WithClientTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if len(headers) == 0 {
			return
		}
		o.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// WithBearerToken authenticates every request made by the client.
func WithBearerToken(token string) ClientOption {
	return func(o *ClientOptions) {
		o.BearerToken = token
	}
}

// WithRetries retries requests that fail at the transport level.
func WithRetries(count int, wait time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if count >= 0 {
			o.RetryCount = count
		}
		if wait > 0 {
			o.RetryWait = wait
		}
	}
}
