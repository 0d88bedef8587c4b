// Package cache holds the TTL snapshot cache serving cheap leaderboard
// reads and top-rank churn detection.
package cache

import (
	"context"
	"time"
)

// Cache is a minimal TTL key/value store.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
}
