package backend

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries the connection parameters of every backend. Each backend
// reads the fields it understands and ignores the rest.
type Config struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	Path        string
	URL         string
	Token       string
	Table       string
	Shards      int
	DialTimeout time.Duration
}

// DefaultEnvPrefix is the prefix ConfigFromEnv uses when given "".
const DefaultEnvPrefix = "SKVDB"

// ConfigFromEnv reads <PREFIX>_HOST, _PORT, _DATABASE, _USER, _PASSWORD,
// _PATH, _URL, _TOKEN, _TABLE, _SHARDS and _DIAL_TIMEOUT. Unset variables
// leave the field zero so the backend default applies.
func ConfigFromEnv(prefix string) (Config, error) {
	return configFrom(prefix, os.LookupEnv)
}

func configFrom(prefix string, lookup func(string) (string, bool)) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	prefix = strings.TrimSuffix(strings.ToUpper(prefix), "_") + "_"
	get := func(name string) string {
		v, _ := lookup(prefix + name)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Host:     get("HOST"),
		Database: get("DATABASE"),
		User:     get("USER"),
		Password: get("PASSWORD"),
		Path:     get("PATH"),
		URL:      get("URL"),
		Token:    get("TOKEN"),
		Table:    get("TABLE"),
	}

	var err error
	if cfg.Port, err = parseInt(prefix+"PORT", get("PORT")); err != nil {
		return Config{}, err
	}
	if cfg.Shards, err = parseInt(prefix+"SHARDS", get("SHARDS")); err != nil {
		return Config{}, err
	}
	if raw := get("DIAL_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("backend: %sDIAL_TIMEOUT: invalid duration %q", prefix, raw)
		}
		cfg.DialTimeout = d
	}
	return cfg, nil
}

func parseInt(name, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("backend: %s: invalid number %q", name, raw)
	}
	return n, nil
}

func (c Config) hostPort(defaultHost string, defaultPort int) string {
	host := c.Host
	if host == "" {
		host = defaultHost
	}
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}
