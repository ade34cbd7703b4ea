// Package keys resolves ad network key ids to PEM public keys. The whole key
// set is fetched from the key server at once and held in an ssv.KeyCache.
package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

const (
	DefaultServerURL    = "https://www.gstatic.com/admob/reward/verifier-keys.json"
	DefaultCacheKey     = "admob_ssv.public_keys"
	DefaultCacheTTL     = 24 * time.Hour
	DefaultFetchTimeout = 10 * time.Second
	DefaultFetchRetries = 2

	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
	maxDocumentBytes     = 1 << 20
)

// Config controls where keys come from and how long they are cached.
type Config struct {
	ServerURL    string
	CacheKey     string
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	// FetchRetries is the number of extra attempts after a failed fetch.
	FetchRetries int
}

func (c Config) withDefaults() Config {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.CacheKey == "" {
		c.CacheKey = DefaultCacheKey
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	return c
}

// keyDocument mirrors the key server response. keyId is published as a JSON
// number; strings are accepted too.
type keyDocument struct {
	Keys []struct {
		KeyID any    `json:"keyId"`
		PEM   string `json:"pem"`
	} `json:"keys"`
}

// statusError carries a non-2xx key server status. Client errors other
// than 429 are not retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("key server returned status %d", e.code)
}

// Store resolves key ids through the cache, refreshing the whole set when the
// cache is cold or expired.
type Store struct {
	cfg    Config
	cache  ssv.KeyCache
	client *http.Client
	logger zerolog.Logger
}

// New creates a Store. A nil client gets one bounded by cfg.FetchTimeout.
func New(cfg Config, cache ssv.KeyCache, client *http.Client, logger zerolog.Logger) *Store {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Store{
		cfg:    cfg,
		cache:  cache,
		client: client,
		logger: logger.With().Str("component", "keystore").Str("cache_key", cfg.CacheKey).Logger(),
	}
}

// TTL is the cache lifetime actually applied: the configured ttl floored to
// whole seconds.
func (s *Store) TTL() time.Duration {
	return s.cfg.CacheTTL.Truncate(time.Second)
}

// Resolve returns the PEM for keyID. While a snapshot is cached, lookups are
// answered from it alone, including misses; a cold or expired cache triggers
// one refresh of the full set. Errors wrap ssv.ErrKeyNotFound or ssv.ErrKeyFetch.
func (s *Store) Resolve(ctx context.Context, keyID string) (string, error) {
	set, err := s.keySet(ctx)
	if err != nil {
		return "", err
	}
	pem, ok := set.Lookup(keyID)
	if !ok {
		return "", fmt.Errorf("key id %q: %w", keyID, ssv.ErrKeyNotFound)
	}
	return pem, nil
}

func (s *Store) keySet(ctx context.Context) (ssv.PublicKeySet, error) {
	cached, found, err := s.cache.GetKeySet(ctx, s.cfg.CacheKey)
	if err != nil {
		// A broken cache degrades to fetching on every call.
		s.logger.Warn().Err(err).Msg("Key cache read failed, fetching from key server")
	}
	if found {
		return cached, nil
	}
	s.logger.Debug().Msg("Key set not cached, refreshing")
	return s.Refresh(ctx)
}

// Refresh fetches the key set and replaces the cached snapshot. On failure
// the cache is left untouched.
func (s *Store) Refresh(ctx context.Context) (ssv.PublicKeySet, error) {
	set, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("url", s.cfg.ServerURL).Msg("Failed to fetch key set")
		return nil, fmt.Errorf("%w: %w", ssv.ErrKeyFetch, err)
	}

	if err := s.cache.SetKeySet(ctx, s.cfg.CacheKey, set, s.TTL()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache key set")
	}
	s.logger.Info().Int("keys", len(set)).Dur("ttl", s.TTL()).Msg("Key set refreshed")
	return set, nil
}

func (s *Store) fetch(ctx context.Context) (ssv.PublicKeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = retryInitialInterval
	exp.MaxInterval = retryMaxInterval
	exp.MaxElapsedTime = s.cfg.FetchTimeout
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.cfg.FetchRetries)), ctx)

	var set ssv.PublicKeySet
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		set, err = s.fetchOnce(ctx)
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError && se.code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		s.logger.Debug().Err(err).Int("attempt", attempt).Msg("Key fetch attempt failed")
		return err
	}, policy)
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Store) fetchOnce(ctx context.Context) (ssv.PublicKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ServerURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode}
	}
	return decodeKeySet(io.LimitReader(resp.Body, maxDocumentBytes))
}

// decodeKeySet builds a fresh snapshot from the key server document.
func decodeKeySet(r io.Reader) (ssv.PublicKeySet, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc keyDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed key document: %w", err)
	}

	set := make(ssv.PublicKeySet, len(doc.Keys))
	for _, k := range doc.Keys {
		var id string
		switch v := k.KeyID.(type) {
		case json.Number:
			id = v.String()
		case string:
			id = v
		default:
			continue
		}
		if id == "" || k.PEM == "" {
			continue
		}
		set[id] = k.PEM
	}
	if len(set) == 0 {
		return nil, errors.New("key document contains no usable keys")
	}
	return set, nil
}
