// Package firestore provides a key set cache implementation using Google Cloud Firestore.
// Each cache key maps to one document; expiry is checked on read.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// keySetDocument is the structure stored in a Firestore document.
type keySetDocument struct {
	Keys      map[string]string `firestore:"keys"`
	ExpiresAt time.Time         `firestore:"expiresAt"`
	FetchedAt time.Time         `firestore:"fetchedAt"`
}

// Cache is a concrete implementation of the ssv.KeyCache interface using Firestore.
type Cache struct {
	client     *firestore.Client
	collection *firestore.CollectionRef
	logger     zerolog.Logger
	now        func() time.Time
}

// NewFirestoreCache creates a new Firestore-backed cache.
func NewFirestoreCache(client *firestore.Client, collectionName string, logger zerolog.Logger) *Cache {
	return &Cache{
		client:     client,
		collection: client.Collection(collectionName),
		logger: logger.With().
			Str("component", "firestore_cache").
			Str("collection", collectionName).
			Logger(),
		now: time.Now,
	}
}

// SetKeySet creates or overwrites the document holding the key set.
func (c *Cache) SetKeySet(ctx context.Context, cacheKey string, set ssv.PublicKeySet, ttl time.Duration) error {
	now := c.now().UTC()
	doc := keySetDocument{
		Keys:      map[string]string(set),
		ExpiresAt: now.Add(ttl),
		FetchedAt: now,
	}

	c.logger.Debug().Str("key", cacheKey).Int("keys", len(set)).Msg("Storing key set")
	if _, err := c.collection.Doc(cacheKey).Set(ctx, doc); err != nil {
		c.logger.Error().Err(err).Str("key", cacheKey).Msg("Failed to store key set")
		return fmt.Errorf("failed to store key set %s: %w", cacheKey, err)
	}
	return nil
}

// GetKeySet retrieves the key set document. A missing or expired document is a miss.
func (c *Cache) GetKeySet(ctx context.Context, cacheKey string) (ssv.PublicKeySet, bool, error) {
	snap, err := c.collection.Doc(cacheKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			c.logger.Debug().Str("key", cacheKey).Msg("Key set not cached")
			return nil, false, nil
		}
		c.logger.Warn().Err(err).Str("key", cacheKey).Msg("Failed to get key set document")
		return nil, false, fmt.Errorf("failed to get key set %s: %w", cacheKey, err)
	}

	var doc keySetDocument
	if err := snap.DataTo(&doc); err != nil {
		c.logger.Error().Err(err).Str("key", cacheKey).Msg("Failed to parse key set document")
		return nil, false, fmt.Errorf("failed to parse key set document %s: %w", cacheKey, err)
	}

	if !c.now().Before(doc.ExpiresAt) {
		c.logger.Debug().Str("key", cacheKey).Time("expires_at", doc.ExpiresAt).Msg("Cached key set expired")
		return nil, false, nil
	}
	if doc.Keys == nil {
		doc.Keys = map[string]string{}
	}
	return ssv.PublicKeySet(doc.Keys), true, nil
}

var _ ssv.KeyCache = (*Cache)(nil)
