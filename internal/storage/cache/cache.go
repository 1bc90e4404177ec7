// Package cache adds Redis read-aside caching in front of the Firestore stores.
package cache

import (
	"context"
	"time"
)

// CacheClient defines the subset of Redis commands the decorators need.
type CacheClient interface {
	// Get returns an error for a miss; callers treat any error as a miss.
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// SetIfNewer stores value unless the version recorded for key orders after
	// version. It reports whether the value was written.
	SetIfNewer(ctx context.Context, key string, value any, version string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DelPrefix(ctx context.Context, prefix string) error
}

const keyPrefix = "unifiedpush:"
