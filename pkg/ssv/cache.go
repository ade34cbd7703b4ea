// --- File: pkg/ssv/cache.go ---
package ssv

import (
	"context"
	"time"
)

// KeyCache defines the public interface for caching the ad network's key set.
// Any component that can hold a PublicKeySet with an expiry (in-memory, Redis,
// Firestore, etc.) must implement this interface.
type KeyCache interface {
	// GetKeySet returns the snapshot stored under cacheKey.
	// A missing or expired entry is reported as found == false with a nil error.
	GetKeySet(ctx context.Context, cacheKey string) (set PublicKeySet, found bool, err error)

	// SetKeySet replaces the snapshot stored under cacheKey. The entry must
	// expire after ttl.
	SetKeySet(ctx context.Context, cacheKey string, set PublicKeySet, ttl time.Duration) error
}
