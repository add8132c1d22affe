package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"repricelab/api"
	"repricelab/i18n"
	"repricelab/notify"
)

const (
	storageMemory = "memory"
	storageRedis  = "redis"
	storageTable  = "table"

	defaultBackendURL = "http://localhost:8000"
)

type config struct {
	ListenAddr string
	Debug      bool
	BackendURL *url.URL

	StorageBackend     string
	StorageConnStr     string
	BoardsTable        string
	NotificationsQueue string

	RedisConn  string
	CacheTTL   time.Duration
	DeduperTTL time.Duration

	Auth0Domain   string
	Auth0Audience string
	TestMode      bool
	TestSecret    string
	JWKSCacheTTL  time.Duration

	Notify        notify.Config
	DefaultLocale string
}

// envReader reads typed settings and remembers the first error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (r *envReader) envString(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) envBool(key string, def bool) bool {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *envReader) envInt(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	if n <= 0 {
		r.fail(key, errors.New("must be greater than zero"))
		return def
	}
	return n
}

func (r *envReader) envDur(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	if d < 0 {
		r.fail(key, errors.New("must not be negative"))
		return def
	}
	return d
}

func loadConfig(getenv func(string) string) (config, error) {
	r := &envReader{getenv: getenv}
	cfg := config{
		ListenAddr:         r.envString("LISTEN_ADDR", ""),
		Debug:              r.envBool("DEBUG", false),
		StorageBackend:     strings.ToLower(r.envString("STORAGE_BACKEND", storageMemory)),
		StorageConnStr:     r.envString("STORAGE_CONNECTION_STRING", ""),
		BoardsTable:        r.envString("BOARDS_TABLE", "Boards"),
		NotificationsQueue: r.envString("NOTIFICATIONS_QUEUE", ""),
		RedisConn:          r.envString("REDIS_CONNECTION_STRING", ""),
		CacheTTL:           r.envDur("CACHE_TTL", time.Minute),
		DeduperTTL:         r.envDur("DEDUPER_TTL", 24*time.Hour),
		Auth0Domain:        r.envString("AUTH0_DOMAIN", ""),
		Auth0Audience:      r.envString("AUTH0_AUDIENCE", ""),
		TestMode:           r.envString("AUTH0_TEST_MODE", "") == "1",
		TestSecret:         r.getenv("TEST_JWT_SECRET"),
		JWKSCacheTTL:       r.envDur("JWKS_CACHE_TTL", api.DefaultJWKSCacheTTL),
		Notify: notify.Config{
			Workers:        r.envInt("NOTIFY_WORKERS", notify.DefaultConfig.Workers),
			Buffer:         r.envInt("NOTIFY_BUFFER", notify.DefaultConfig.Buffer),
			Timeout:        r.envDur("NOTIFY_TIMEOUT", notify.DefaultConfig.Timeout),
			HandoffTimeout: r.envDur("NOTIFY_HANDOFF_TIMEOUT", notify.DefaultConfig.HandoffTimeout),
		},
		DefaultLocale: r.envString("DEFAULT_LOCALE", i18n.DefaultLocale),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
		if port := r.envString("FUNCTIONS_CUSTOMHANDLER_PORT", ""); port != "" {
			cfg.ListenAddr = ":" + port
		}
	}
	backend, err := url.Parse(r.envString("BACKEND_URL", defaultBackendURL))
	if err != nil || backend.Scheme == "" || backend.Host == "" {
		r.fail("BACKEND_URL", fmt.Errorf("need an absolute url, got %q", r.getenv("BACKEND_URL")))
	}
	cfg.BackendURL = backend
	if r.err != nil {
		return config{}, r.err
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch c.StorageBackend {
	case storageMemory:
	case storageRedis:
		if c.RedisConn == "" {
			return errors.New("STORAGE_BACKEND=redis needs REDIS_CONNECTION_STRING")
		}
	case storageTable:
		if c.StorageConnStr == "" || c.BoardsTable == "" {
			return errors.New("STORAGE_BACKEND=table needs STORAGE_CONNECTION_STRING and BOARDS_TABLE")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.NotificationsQueue != "" && c.StorageConnStr == "" {
		return errors.New("NOTIFICATIONS_QUEUE needs STORAGE_CONNECTION_STRING")
	}
	if c.TestMode {
		if c.TestSecret == "" {
			return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		return nil
	}
	if c.Auth0Domain == "" || c.Auth0Audience == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// parseRedisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" string.
func parseRedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
