package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// Redis implements Client on a go-redis client. Keys are namespaced with prefix.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis-backed Client.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{redis: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) unkey(k string) string {
	if r.prefix == "" {
		return k
	}
	return k[len(r.prefix)+1:]
}

// Get returns the stored value or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return b, nil
}

// Set is SET with PX. A ttl <= 0 never expires.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.redis.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetKeepTTL uses SET ... XX KEEPTTL so an expired key is never resurrected.
func (r *Redis) SetKeepTTL(ctx context.Context, key string, value []byte) error {
	err := r.redis.SetArgs(ctx, r.key(key), value, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Take is GETDEL.
func (r *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	b, err := r.redis.GetDel(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return b, nil
}

// Delete removes keys; missing keys are ignored.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeletePrefix walks SCAN MATCH prefix* and deletes each batch. Keys created
// while the scan runs may survive.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor uint64
		total  int
	)
	pattern := r.key(prefix) + "*"

	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := r.redis.Del(ctx, keys...).Result()
			if err != nil {
				return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			total += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

// Keys lists keys under prefix with SCAN, without the namespace.
func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	pattern := r.key(prefix) + "*"

	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, k := range keys {
			out = append(out, r.unkey(k))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// TTL returns the remaining lifetime, 0 for a key without expiry, or ErrMiss.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.redis.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// go-redis reports -2 for a missing key and -1 for no expiry.
	switch {
	case d == -2:
		return 0, ErrMiss
	case d < 0:
		return 0, nil
	}
	return d, nil
}

// Incr counts a hit in a fixed window. INCR and PTTL run in one
// transaction; a counter left without an expiry gets the window TTL, so a
// failed PEXPIRE is repaired by the next hit.
func (r *Redis) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := r.key(key)
	pipe := r.redis.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if window > 0 && pttl.Val() == -1 {
		if err := r.redis.PExpire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return incr.Val(), nil
}

// Count returns the counter value, 0 when absent.
func (r *Redis) Count(ctx context.Context, key string) (int64, error) {
	n, err := r.redis.Get(ctx, r.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
