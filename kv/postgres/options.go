package postgres

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Options configures the connection pool and the record table.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Table           string
	AutoMigrate     bool
}

type Option func(*Options)

// WithDSN sets the lib/pq connection string.
func WithDSN(dsn string) Option {
	return func(o *Options) {
		if dsn != "" {
			o.DSN = dsn
		}
	}
}

// WithMaxOpenConns controls the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxOpenConns = n
		}
	}
}

// WithMaxIdleConns controls the idle connection pool size.
func WithMaxIdleConns(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxIdleConns = n
		}
	}
}

// WithConnMaxLifetime controls how long a connection can be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ConnMaxLifetime = d
		}
	}
}

// WithTable names the record table. It must be a plain SQL identifier.
func WithTable(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Table = name
		}
	}
}

// WithAutoMigrate toggles creating the table and its sequence on open.
func WithAutoMigrate(enabled bool) Option {
	return func(o *Options) {
		o.AutoMigrate = enabled
	}
}

func defaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Table:           DefaultTable,
		AutoMigrate:     true,
	}
}

// DSNParams are the discrete connection parameters BuildDSN assembles.
type DSNParams struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Timeout  time.Duration
}

// BuildDSN renders params as a postgres:// URL understood by lib/pq.
func BuildDSN(p DSNParams) string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port <= 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + p.Database,
	}
	switch {
	case p.User != "" && p.Password != "":
		u.User = url.UserPassword(p.User, p.Password)
	case p.User != "":
		u.User = url.User(p.User)
	}
	q := url.Values{}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	q.Set("sslmode", sslmode)
	if p.Timeout > 0 {
		secs := int(p.Timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
