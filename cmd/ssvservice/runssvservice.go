package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-admob-ssv/internal/events"
	"github.com/tinywideclouds/go-admob-ssv/internal/keys"
	fs "github.com/tinywideclouds/go-admob-ssv/internal/storage/firestore"
	"github.com/tinywideclouds/go-admob-ssv/internal/storage/inmemory"
	rediscache "github.com/tinywideclouds/go-admob-ssv/internal/storage/redis"
	"github.com/tinywideclouds/go-admob-ssv/internal/verification"
	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
	"github.com/tinywideclouds/go-admob-ssv/ssvservice"
	"github.com/tinywideclouds/go-admob-ssv/ssvservice/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := context.Background()

	// --- 1. Load Configuration ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Fatal().Err(err).Msg("Failed to unmarshal embedded yaml config")
	}

	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build base configuration from YAML")
	}

	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to finalize configuration with environment overrides")
	}

	logger.Info().
		Str("run_mode", cfg.RunMode).
		Str("cache_backend", cfg.CacheBackend).
		Str("keys_server_url", cfg.KeyServerURL).
		Msg("Configuration loaded")

	// --- 2. Dependency Injection ---
	cache, closer, err := newKeyCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize key cache")
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("Failed to close key cache")
		}
	}()

	store := keys.New(cfg.KeysConfig(), cache, nil, logger)
	dispatcher := events.NewDispatcher(logger, events.NewLogListener(logger))
	callback := verification.NewCallback(store, dispatcher, logger)

	service := ssvservice.New(cfg, callback, logger)

	// --- 3. Start Service and Handle Shutdown ---
	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("address", cfg.HTTPListenAddr).Msg("Starting service...")
		if startErr := service.Start(); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
			errChan <- startErr
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.Error().Err(err).Msg("Service failed")
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("OS signal received, initiating shutdown.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if shutdownErr := service.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("Service shutdown failed")
		} else {
			logger.Info().Msg("Service shutdown complete")
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newKeyCache builds the configured key set cache and the client behind it.
func newKeyCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ssv.KeyCache, io.Closer, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client, err := rediscache.NewClient(rediscache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Int("db", cfg.Redis.DB).Msg("Using Redis key cache")
		return rediscache.NewRedisCache(client, logger), client, nil

	case config.CacheBackendFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Firestore client for project %s: %w", cfg.ProjectID, err)
		}
		logger.Info().
			Str("project_id", cfg.ProjectID).
			Str("collection", cfg.FirestoreCollection).
			Msg("Using Firestore key cache")
		return fs.NewFirestoreCache(fsClient, cfg.FirestoreCollection, logger), fsClient, nil

	default:
		logger.Info().Msg("Using in-memory key cache")
		return inmemory.New(), nopCloser{}, nil
	}
}
