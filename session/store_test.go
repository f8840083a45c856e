package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/storeauth/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
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
	return NewStore(cache.NewRedis(rdb, "sa")), mr
}

func testRecord(userID string) *Record {
	now := time.Now()
	return &Record{
		UserID:    userID,
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(30 * 24 * time.Hour).Unix(),
	}
}

func mustID(t *testing.T, userID string) string {
	t.Helper()
	id, err := NewID(userID)
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	return id
}

func TestNewIDCarriesUserPrefix(t *testing.T) {
	a := mustID(t, "u-1")
	b := mustID(t, "u-1")
	if a == b {
		t.Fatal("expected unique session ids")
	}
	if !strings.HasPrefix(a, "u-1:") {
		t.Fatalf("unexpected id %q", a)
	}
	owner, err := UserIDFromID(a)
	if err != nil || owner != "u-1" {
		t.Fatalf("UserIDFromID = %q, %v", owner, err)
	}
	if _, err := NewID("bad:user"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := UserIDFromID("nocolon"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestCreateGetDeleteIdempotent(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	id := mustID(t, "u-1")

	if err := store.Create(ctx, id, testRecord("u-1"), time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != id || got.UserID != "u-1" || got.IP != "203.0.113.7" || got.UserAgent != "Mozilla/5.0" {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTTLIsEnforcedByStore(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()
	id := mustID(t, "u-1")

	if err := store.Create(ctx, id, testRecord("u-1"), time.Minute); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mr.FastForward(61 * time.Second)

	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestUpdateKeepTTLPreservesRemainingLifetime(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()
	id := mustID(t, "u-1")

	if err := store.Create(ctx, id, testRecord("u-1"), time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mr.FastForward(50 * time.Minute)

	rec, _ := store.Get(ctx, id)
	rec.IP = "198.51.100.1"
	if err := store.UpdateKeepTTL(ctx, rec); err != nil {
		t.Fatalf("UpdateKeepTTL: %v", err)
	}

	got, _ := store.Get(ctx, id)
	if got.IP != "198.51.100.1" {
		t.Fatalf("update not applied: %+v", got)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected update to keep original expiry, got %v", err)
	}

	if err := store.UpdateKeepTTL(ctx, rec); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestDeleteByPatternScopesToUser(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	a1, a2, b1 := mustID(t, "a"), mustID(t, "a"), mustID(t, "b")
	for id, owner := range map[string]string{a1: "a", a2: "a", b1: "b"} {
		if err := store.Create(ctx, id, testRecord(owner), time.Hour); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	list, err := store.ListForUser(ctx, "a")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListForUser = %d, %v", len(list), err)
	}

	n, err := store.DeleteForUser(ctx, "a")
	if err != nil || n != 2 {
		t.Fatalf("DeleteForUser = %d, %v", n, err)
	}
	if _, err := store.Get(ctx, a1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a1 revoked, got %v", err)
	}
	if _, err := store.Get(ctx, b1); err != nil {
		t.Fatalf("expected b1 to survive: %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	store := NewStore(cache.NewMemory())
	ctx := context.Background()
	id := mustID(t, "u-1")

	if err := store.Create(ctx, id, testRecord("u-1"), time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Get(ctx, id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n, _ := store.DeleteForUser(ctx, "u-1"); n != 1 {
		t.Fatalf("expected one session deleted, got %d", n)
	}
}

func TestCorruptRecordIsTreatedAsMissing(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewStore(cache.NewRedis(rdb, ""))

	if err := mr.Set("sess:u-1:abc", "\x63garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background(), "u-1:abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("sess:u-1:abc") {
		t.Fatal("expected corrupt record to be removed")
	}
}
