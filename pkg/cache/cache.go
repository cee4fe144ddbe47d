// Package cache provides byte-level caches for tessera.
//
// Two things are cached:
//   - prepared tiles: the resized JPEG and average color computed from a raw
//     source image, keyed by the source's content hash and the cell size, so
//     re-running preparation over an unchanged directory skips decoding and
//     resizing;
//   - tile bytes: encoded tiles read from a processed directory, keyed by
//     candidate ID, so several server processes can share one Redis.
//
// Backends: [FileCache] (CLI default, under the user cache dir),
// [MemoryCache] (per-process), [RedisCache] (shared), and [NullCache]
// (caching disabled). Cache failures are never fatal to a run; callers treat
// a failed Get as a miss and ignore failed Sets.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the cache.
	Close() error
}

// Default time-to-live values.
const (
	TTLPrepared = 30 * 24 * time.Hour
	TTLTile     = 7 * 24 * time.Hour
)
