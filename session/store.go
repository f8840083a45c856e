package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/cache"
)

const (
	keyPrefix    = "sess:"
	idSeparator  = ":"
	randomIDSize = 16
)

var (
	// ErrNotFound is returned when a session id has no live record.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps cache backend failures.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrInvalidID is returned for ids that do not carry a user prefix.
	ErrInvalidID = errors.New("invalid session id")
)

// NewID returns a fresh session id owned by userID.
func NewID(userID string) (string, error) {
	if userID == "" || strings.Contains(userID, idSeparator) {
		return "", ErrInvalidID
	}
	var raw [randomIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return userID + idSeparator + base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// UserIDFromID returns the owner prefix of a session id.
func UserIDFromID(sessionID string) (string, error) {
	userID, random, ok := strings.Cut(sessionID, idSeparator)
	if !ok || userID == "" || random == "" {
		return "", ErrInvalidID
	}
	return userID, nil
}

// UserPrefix is the DeleteByPattern prefix covering every session of userID.
func UserPrefix(userID string) string {
	return userID + idSeparator
}

// Store keeps session records in a cache.Client. TTL is enforced by the
// cache; concurrent Create calls on one id are last-write-wins.
type Store struct {
	cache cache.Client
}

// NewStore returns a Store on c.
func NewStore(c cache.Client) *Store {
	return &Store{cache: c}
}

func (s *Store) key(sessionID string) string {
	return keyPrefix + sessionID
}

// Create writes rec under sessionID with ttl.
func (s *Store) Create(ctx context.Context, sessionID string, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	if _, err := UserIDFromID(sessionID); err != nil {
		return err
	}
	rec.SessionID = sessionID

	encoded, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.key(sessionID), encoded, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get loads the record for sessionID. A corrupt entry is deleted and
// reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.cache.Get(ctx, s.key(sessionID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		_ = s.cache.Delete(ctx, s.key(sessionID))
		return nil, ErrNotFound
	}
	rec.SessionID = sessionID
	return rec, nil
}

// Delete removes sessionID. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.cache.Delete(ctx, s.key(sessionID)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteByPattern removes every session whose id starts with prefix.
func (s *Store) DeleteByPattern(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("empty session prefix")
	}
	n, err := s.cache.DeletePrefix(ctx, s.key(prefix))
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// DeleteForUser removes all sessions owned by userID.
func (s *Store) DeleteForUser(ctx context.Context, userID string) (int, error) {
	return s.DeleteByPattern(ctx, UserPrefix(userID))
}

// UpdateKeepTTL rewrites rec in place without touching the remaining TTL.
func (s *Store) UpdateKeepTTL(ctx context.Context, rec *Record) error {
	encoded, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := s.cache.SetKeepTTL(ctx, s.key(rec.SessionID), encoded); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List returns live records whose id starts with prefix. Entries that expire
// during the walk are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]*Record, error) {
	keys, err := s.cache.Keys(ctx, s.key(prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Record, 0, len(keys))
	for _, k := range keys {
		rec, err := s.Get(ctx, strings.TrimPrefix(k, keyPrefix))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListForUser returns the live sessions of userID.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Record, error) {
	return s.List(ctx, UserPrefix(userID))
}
