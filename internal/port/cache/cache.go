// Package cache defines the in-process cache port (interface).
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for the dispatch-dedup cache.
type Cache interface {
	// Get retrieves a value. ok is false on a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error
}
