// Package cache provides the small cache surface the data layer needs:
// string/JSON values with TTLs, existence probes for cooldown markers,
// and best-effort locks for single-flight refreshes. Three
// implementations share the Service interface: an in-process LRU map,
// a Redis client, and a layered memory-over-Redis combination.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache contract consumed by the rest of the module.
type Service interface {
	// Set stores value under key. Strings are stored verbatim, anything
	// else is JSON-encoded. A non-positive expiration means the backend
	// default TTL.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get reads key into dest (a *string, or a pointer for JSON
	// decoding). Returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	// Exists reports whether any of the given keys is present.
	Exists(ctx context.Context, keys ...string) (bool, error)
	// TryLock acquires a best-effort lock with the given TTL. It returns
	// false without error when another holder has the lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
