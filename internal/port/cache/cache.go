// Package cache defines the port interface for read-side caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. The coordinator uses it
// to take pressure off the audit store on hot event-trail reads.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
