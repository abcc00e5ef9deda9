package cache

import (
	"context"
	"time"
)

// Cache is a read-through byte cache. The second Get return reports a
// hit; a miss is not an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}
