package cache

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedis(rdb, "sa"), mr
}

func backends(t *testing.T) map[string]Client {
	r, _ := newRedisCache(t)
	return map[string]Client{
		"redis":  r,
		"memory": NewMemory(),
	}
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
				t.Fatalf("expected miss, got %v", err)
			}
			if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := c.Get(ctx, "k")
			if err != nil || string(got) != "v" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := c.Delete(ctx, "k", "missing"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
				t.Fatalf("expected miss after delete, got %v", err)
			}
		})
	}
}

func TestSetKeepTTL(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := c.SetKeepTTL(ctx, "absent", []byte("x")); !errors.Is(err, ErrMiss) {
				t.Fatalf("expected ErrMiss for absent key, got %v", err)
			}

			if err := c.Set(ctx, "k", []byte("v1"), time.Hour); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := c.SetKeepTTL(ctx, "k", []byte("v2")); err != nil {
				t.Fatalf("SetKeepTTL: %v", err)
			}

			got, _ := c.Get(ctx, "k")
			if string(got) != "v2" {
				t.Fatalf("value = %q, want v2", got)
			}
			ttl, err := c.TTL(ctx, "k")
			if err != nil {
				t.Fatalf("TTL: %v", err)
			}
			if ttl <= 0 || ttl > time.Hour {
				t.Fatalf("expected remaining ttl to be kept, got %v", ttl)
			}
		})
	}
}

func TestRedisSetKeepTTLDoesNotResetExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	if err := c.Set(ctx, "k", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(40 * time.Minute)
	if err := c.SetKeepTTL(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("SetKeepTTL: %v", err)
	}

	ttl, _ := c.TTL(ctx, "k")
	if ttl > 21*time.Minute {
		t.Fatalf("expected ~20m remaining, got %v", ttl)
	}

	mr.FastForward(21 * time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected key to expire on original schedule, got %v", err)
	}
}

func TestDeletePrefixAndKeys(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"sess:u1:a", "sess:u1:b", "sess:u2:a", "other"} {
				if err := c.Set(ctx, k, []byte("x"), time.Hour); err != nil {
					t.Fatalf("Set: %v", err)
				}
			}

			keys, err := c.Keys(ctx, "sess:u1:")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "sess:u1:a" || keys[1] != "sess:u1:b" {
				t.Fatalf("unexpected keys %v", keys)
			}

			n, err := c.DeletePrefix(ctx, "sess:u1:")
			if err != nil || n != 2 {
				t.Fatalf("DeletePrefix = %d, %v", n, err)
			}
			if _, err := c.Get(ctx, "sess:u2:a"); err != nil {
				t.Fatalf("expected other user's key to survive: %v", err)
			}
			if _, err := c.Get(ctx, "other"); err != nil {
				t.Fatalf("expected unrelated key to survive: %v", err)
			}
		})
	}
}

func TestTakeIsOneShot(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_ = c.Set(ctx, "state", []byte("s"), time.Minute)
			got, err := c.Take(ctx, "state")
			if err != nil || string(got) != "s" {
				t.Fatalf("Take = %q, %v", got, err)
			}
			if _, err := c.Take(ctx, "state"); !errors.Is(err, ErrMiss) {
				t.Fatalf("expected second Take to miss, got %v", err)
			}
		})
	}
}

func TestIncrWindow(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := int64(1); i <= 3; i++ {
				n, err := c.Incr(ctx, "ctr", time.Minute)
				if err != nil {
					t.Fatalf("Incr: %v", err)
				}
				if n != i {
					t.Fatalf("Incr = %d, want %d", n, i)
				}
			}
			ttl, err := c.TTL(ctx, "ctr")
			if err != nil || ttl <= 0 {
				t.Fatalf("expected counter window ttl, got %v, %v", ttl, err)
			}
			if n, err := c.Count(ctx, "ctr"); err != nil || n != 3 {
				t.Fatalf("Count = %d, %v", n, err)
			}
			if n, err := c.Count(ctx, "nope"); err != nil || n != 0 {
				t.Fatalf("Count of missing = %d, %v", n, err)
			}
		})
	}
}

func TestRedisIncrRepairsCounterWithoutExpiry(t *testing.T) {
	r, mr := newRedisCache(t)
	ctx := context.Background()

	if err := mr.Set("sa:rl:stuck", "7"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if mr.TTL("sa:rl:stuck") != 0 {
		t.Fatal("seeded counter should have no expiry")
	}

	n, err := r.Incr(ctx, "rl:stuck", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 8 {
		t.Fatalf("count = %d, want 8", n)
	}
	if ttl := mr.TTL("sa:rl:stuck"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, want window expiry", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if n, _ := r.Incr(ctx, "rl:stuck", time.Minute); n != 1 {
		t.Fatalf("count after window = %d, want 1", n)
	}
}

func TestRedisTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	_ = c.Set(ctx, "k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if _, err := c.TTL(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss from TTL, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	mr.Close()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
