// Package redis provides a key set cache shared across replicas, backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// Cache stores the key set as a JSON object under the cache key, relying on
// Redis key expiry for the ttl.
type Cache struct {
	client redis.Cmdable
	logger zerolog.Logger
}

// Options configures NewClient.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient opens a Redis client for the cache.
func NewClient(opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.Cmdable, logger zerolog.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}
}

// GetKeySet reads and decodes the cached key set. redis.Nil is a miss.
func (c *Cache) GetKeySet(ctx context.Context, cacheKey string) (ssv.PublicKeySet, bool, error) {
	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.logger.Debug().Str("key", cacheKey).Msg("Key set not cached")
			return nil, false, nil
		}
		c.logger.Warn().Err(err).Str("key", cacheKey).Msg("Failed to read key set")
		return nil, false, fmt.Errorf("failed to get key set %s: %w", cacheKey, err)
	}

	var set ssv.PublicKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		c.logger.Error().Err(err).Str("key", cacheKey).Msg("Failed to decode cached key set")
		return nil, false, fmt.Errorf("failed to decode key set %s: %w", cacheKey, err)
	}
	if set == nil {
		set = ssv.PublicKeySet{}
	}
	return set, true, nil
}

// SetKeySet writes the key set with a Redis expiry of ttl.
func (c *Cache) SetKeySet(ctx context.Context, cacheKey string, set ssv.PublicKeySet, ttl time.Duration) error {
	// A zero expiration means "persist forever" to Redis.
	if ttl <= 0 {
		return fmt.Errorf("invalid ttl %s for key set %s", ttl, cacheKey)
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode key set %s: %w", cacheKey, err)
	}
	if err := c.client.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", cacheKey).Msg("Failed to store key set")
		return fmt.Errorf("failed to store key set %s: %w", cacheKey, err)
	}
	c.logger.Debug().Str("key", cacheKey).Int("keys", len(set)).Dur("ttl", ttl).Msg("Stored key set")
	return nil
}

var _ ssv.KeyCache = (*Cache)(nil)
