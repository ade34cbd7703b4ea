package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UpdateConfigWithEnvOverrides takes the base configuration (created from YAML)
// and completes it by applying environment variables and final validation.
// This creates the final "Stage 2" runtime configuration.
func UpdateConfigWithEnvOverrides(cfg *Config, logger zerolog.Logger) (*Config, error) {
	logger.Debug().Msg("Applying environment variable overrides...")

	override := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			logger.Debug().Str("key", key).Str("source", "env").Msg("Overriding config value")
			*dst = v
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		logger.Debug().Str("key", "PORT").Str("source", "env").Msg("Overriding config value")
		cfg.HTTPListenAddr = ":" + port
	}
	override("ADMOB_SSV_KEYS_SERVER_URL", &cfg.KeyServerURL)
	override("ADMOB_SSV_KEYS_CACHE_KEY", &cfg.KeysCacheKey)
	override("ADMOB_SSV_CACHE_BACKEND", &cfg.CacheBackend)
	override("GCP_PROJECT_ID", &cfg.ProjectID)
	override("REDIS_ADDR", &cfg.Redis.Addr)
	// The Redis password is exclusively environment-sourced.
	override("REDIS_PASSWORD", &cfg.Redis.Password)

	if v := os.Getenv("ADMOB_SSV_KEYS_CACHE_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMOB_SSV_KEYS_CACHE_TIMEOUT %q: %w", v, err)
		}
		logger.Debug().Str("key", "ADMOB_SSV_KEYS_CACHE_TIMEOUT").Str("source", "env").Msg("Overriding config value")
		cfg.KeysCacheTimeout = d
	}

	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Final config validation failed")
		return nil, err
	}

	logger.Debug().Msg("Configuration finalized and validated successfully")
	return cfg, nil
}

// parseTimeout accepts a Go duration or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
