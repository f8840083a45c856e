package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// Memory implements Client on patrickmn/go-cache for single-process
// deployments and tests.
type Memory struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemory returns an in-process Client.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

func memTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

// Get returns a copy of the stored value or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), b...), nil
}

// Set stores a copy of value. A ttl <= 0 never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(key, append([]byte(nil), value...), memTTL(ttl))
	return nil
}

// SetKeepTTL replaces value and keeps the remaining TTL. It returns ErrMiss
// when the key is absent or already expired.
func (m *Memory) SetKeepTTL(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exp, ok := m.c.GetWithExpiration(key)
	if !ok {
		return ErrMiss
	}

	ttl := gocache.NoExpiration
	if !exp.IsZero() {
		ttl = time.Until(exp)
		if ttl <= 0 {
			m.c.Delete(key)
			return ErrMiss
		}
	}
	m.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Take returns the value and deletes the key.
func (m *Memory) Take(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	m.c.Delete(key)
	b, _ := v.([]byte)
	return b, nil
}

// Delete removes keys; missing keys are ignored.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.c.Items() {
		if strings.HasPrefix(k, prefix) {
			m.c.Delete(k)
			n++
		}
	}
	return n, nil
}

// Keys relies on Items, which already filters expired entries.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range m.c.Items() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// TTL returns the remaining lifetime, 0 for a key without expiry, or ErrMiss.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	_, exp, ok := m.c.GetWithExpiration(key)
	if !ok {
		return 0, ErrMiss
	}
	if exp.IsZero() {
		return 0, nil
	}
	return time.Until(exp), nil
}

// Incr counts a hit. The first hit starts a window that expires after window.
func (m *Memory) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.c.Get(key); !ok {
		m.c.Set(key, int64(1), memTTL(window))
		return 1, nil
	}
	return m.c.IncrementInt64(key, 1)
}

// Count returns the counter value, 0 when absent.
func (m *Memory) Count(_ context.Context, key string) (int64, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return 0, nil
	}
	n, _ := v.(int64)
	return n, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
