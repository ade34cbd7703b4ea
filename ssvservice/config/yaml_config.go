package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"
)

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Durations are Go duration strings ("24h", "10s").
type YamlConfig struct {
	RunMode        string `yaml:"run_mode"`
	HTTPListenAddr string `yaml:"http_listen_addr"`
	CallbackPath   string `yaml:"callback_path"`

	KeyServerURL     string `yaml:"keys_server_url"`
	KeysCacheTimeout string `yaml:"keys_cache_timeout"`
	KeysCacheKey     string `yaml:"keys_cache_key"`
	KeyFetchTimeout  string `yaml:"key_fetch_timeout"`
	KeyFetchRetries  *int   `yaml:"key_fetch_retries"`

	CacheBackend        string `yaml:"cache_backend"`
	ProjectID           string `yaml:"project_id"`
	FirestoreCollection string `yaml:"firestore_collection"`
	Redis               struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`

	Cors struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
		Role           string   `yaml:"cors_role"`
	} `yaml:"cors"`
}

// NewConfigFromYaml converts the raw unmarshaled data (YamlConfig) into a base
// Config. Fields left empty in YAML keep their defaults.
func NewConfigFromYaml(baseCfg *YamlConfig, logger zerolog.Logger) (*Config, error) {
	logger.Debug().Msg("Mapping YAML config to base config struct")

	cfg := Default()
	setString(&cfg.RunMode, baseCfg.RunMode)
	setString(&cfg.HTTPListenAddr, baseCfg.HTTPListenAddr)
	setString(&cfg.CallbackPath, baseCfg.CallbackPath)
	setString(&cfg.KeyServerURL, baseCfg.KeyServerURL)
	setString(&cfg.KeysCacheKey, baseCfg.KeysCacheKey)
	setString(&cfg.CacheBackend, baseCfg.CacheBackend)
	setString(&cfg.ProjectID, baseCfg.ProjectID)
	setString(&cfg.FirestoreCollection, baseCfg.FirestoreCollection)
	cfg.Redis.Addr = baseCfg.Redis.Addr
	cfg.Redis.DB = baseCfg.Redis.DB
	if baseCfg.KeyFetchRetries != nil {
		cfg.KeyFetchRetries = *baseCfg.KeyFetchRetries
	}

	if baseCfg.KeysCacheTimeout != "" {
		d, err := time.ParseDuration(baseCfg.KeysCacheTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid keys_cache_timeout %q: %w", baseCfg.KeysCacheTimeout, err)
		}
		cfg.KeysCacheTimeout = d
	}
	if baseCfg.KeyFetchTimeout != "" {
		d, err := time.ParseDuration(baseCfg.KeyFetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid key_fetch_timeout %q: %w", baseCfg.KeyFetchTimeout, err)
		}
		cfg.KeyFetchTimeout = d
	}

	cfg.CorsConfig = middleware.CorsConfig{
		AllowedOrigins: baseCfg.Cors.AllowedOrigins,
		Role:           middleware.CorsRoleDefault,
	}
	if baseCfg.Cors.Role != "" {
		cfg.CorsConfig.Role = middleware.CorsRole(baseCfg.Cors.Role)
	}

	logger.Debug().
		Str("run_mode", cfg.RunMode).
		Str("http_listen_addr", cfg.HTTPListenAddr).
		Str("callback_path", cfg.CallbackPath).
		Str("keys_server_url", cfg.KeyServerURL).
		Dur("keys_cache_timeout", cfg.KeysCacheTimeout).
		Str("cache_backend", cfg.CacheBackend).
		Strs("cors_origins", cfg.CorsConfig.AllowedOrigins).
		Msg("YAML config mapping complete")

	return cfg, nil
}

// LoadFromFile runs both configuration stages against a YAML file on disk.
func LoadFromFile(path string, logger zerolog.Logger) (*Config, error) {
	logger.Debug().Str("path", path).Msg("Loading config from file")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	return Load(data, logger)
}

// Load runs both configuration stages against raw YAML.
func Load(data []byte, logger zerolog.Logger) (*Config, error) {
	var yamlCfg YamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	cfg, err := NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return UpdateConfigWithEnvOverrides(cfg, logger)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
