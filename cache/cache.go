// Package cache is the TTL key/value layer shared by the session store, the
// MFA pending-setup cache, OAuth state records and rate-limit counters.
//
// Two backends implement [Client]: [Redis] over go-redis and [Memory] over
// patrickmn/go-cache. Expiry is always enforced by the backend itself.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned when a key is absent or expired.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("cache backend unavailable")
)

// Client is a TTL key/value store.
type Client interface {
	// Get returns the value for key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes key with ttl. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetKeepTTL overwrites an existing key and keeps its remaining TTL.
	// It returns ErrMiss if the key does not exist.
	SetKeepTTL(ctx context.Context, key string, value []byte) error
	// Take returns and removes key atomically.
	Take(ctx context.Context, key string) ([]byte, error)
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Keys lists keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// TTL returns the remaining lifetime of key, or ErrMiss.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Incr increments a counter. The window starts at the first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count reads a counter written by Incr. A missing key counts as zero.
	Count(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}
