package port

import (
	"context"
	"time"
)

// LeaseStore is the shared store behind the distributed lock.
type LeaseStore interface {
	// SetNX sets key to value with ttl only if key is absent, atomically.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if it currently holds value, atomically.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// CacheStore is a plain byte cache. Get reports a miss with ErrCacheMiss.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
}
