package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-admob-ssv/internal/keys"
)

// Cache backends for the public key set.
const (
	CacheBackendMemory    = "memory"
	CacheBackendRedis     = "redis"
	CacheBackendFirestore = "firestore"
)

const (
	DefaultRunMode             = "local"
	DefaultHTTPListenAddr      = ":8080"
	DefaultCallbackPath        = "/admob-ssv/"
	DefaultFirestoreCollection = "ssv-cache"
)

// RedisConfig locates the shared Redis cache.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

// Config defines the *single*, authoritative configuration for the SSV service.
// It is created in two stages:
// 1. Loaded from YAML (see NewConfigFromYaml).
// 2. Updated with environment variables (see UpdateConfigWithEnvOverrides).
type Config struct {
	RunMode        string
	HTTPListenAddr string
	CallbackPath   string

	KeyServerURL     string
	KeysCacheTimeout time.Duration
	KeysCacheKey     string
	KeyFetchTimeout  time.Duration
	KeyFetchRetries  int

	CacheBackend        string
	ProjectID           string
	FirestoreCollection string
	Redis               RedisConfig

	// CorsConfig is the processed, ready-to-use middleware config.
	CorsConfig middleware.CorsConfig
}

// Default returns a Config that talks to the public AdMob key server and
// caches keys in memory.
func Default() *Config {
	return &Config{
		RunMode:             DefaultRunMode,
		HTTPListenAddr:      DefaultHTTPListenAddr,
		CallbackPath:        DefaultCallbackPath,
		KeyServerURL:        keys.DefaultServerURL,
		KeysCacheTimeout:    keys.DefaultCacheTTL,
		KeysCacheKey:        keys.DefaultCacheKey,
		KeyFetchTimeout:     keys.DefaultFetchTimeout,
		KeyFetchRetries:     keys.DefaultFetchRetries,
		CacheBackend:        CacheBackendMemory,
		FirestoreCollection: DefaultFirestoreCollection,
		CorsConfig: middleware.CorsConfig{
			Role: middleware.CorsRoleDefault,
		},
	}
}

// KeysConfig returns the key store settings.
func (c *Config) KeysConfig() keys.Config {
	return keys.Config{
		ServerURL:    c.KeyServerURL,
		CacheKey:     c.KeysCacheKey,
		CacheTTL:     c.KeysCacheTimeout,
		FetchTimeout: c.KeyFetchTimeout,
		FetchRetries: c.KeyFetchRetries,
	}
}

// Validate checks the settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.KeyServerURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("keys_server_url %q is not an absolute URL", c.KeyServerURL)
	}
	if c.KeysCacheTimeout.Truncate(time.Second) < time.Second {
		return fmt.Errorf("keys_cache_timeout %s must be at least 1s", c.KeysCacheTimeout)
	}
	if c.KeyFetchTimeout <= 0 {
		return fmt.Errorf("key_fetch_timeout %s must be positive", c.KeyFetchTimeout)
	}
	if c.KeyFetchRetries < 0 {
		return fmt.Errorf("key_fetch_retries %d must not be negative", c.KeyFetchRetries)
	}
	if c.KeysCacheKey == "" {
		return fmt.Errorf("keys_cache_key must not be empty")
	}
	if c.CallbackPath == "" || c.CallbackPath[0] != '/' {
		return fmt.Errorf("callback_path %q must start with '/'", c.CallbackPath)
	}

	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache_backend %q requires redis.addr or REDIS_ADDR", c.CacheBackend)
		}
	case CacheBackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("cache_backend %q requires project_id or GCP_PROJECT_ID", c.CacheBackend)
		}
	default:
		return fmt.Errorf("unknown cache_backend %q", c.CacheBackend)
	}
	return nil
}
