// Package cache provides the key/value store used for calendar and
// entitlement lookups. Stores are owned by the component that creates them;
// there is no package-level state.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store caches JSON-serialisable values with a per-entry TTL.
// A ttl <= 0 means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
