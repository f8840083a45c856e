package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/storeauth/cache"
)

const pendingKeyPrefix = "mfa:pending:"

var (
	// ErrNoPendingSetup is returned when a user has no live pending setup.
	ErrNoPendingSetup = errors.New("mfa pending setup not found")
	// ErrPendingUnavailable wraps cache failures.
	ErrPendingUnavailable = errors.New("mfa pending store unavailable")
)

// PendingSetup is the secret and backup codes generated at setup time and
// held until the user confirms enrollment.
type PendingSetup struct {
	Secret      string    `json:"secret"`
	BackupCodes []string  `json:"backupCodes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PendingStore caches pending setups per user.
type PendingStore struct {
	cache cache.Client
}

// NewPendingStore returns a PendingStore on c.
func NewPendingStore(c cache.Client) *PendingStore {
	return &PendingStore{cache: c}
}

func (s *PendingStore) key(userID string) string {
	return pendingKeyPrefix + userID
}

// Get returns the pending setup of userID or ErrNoPendingSetup.
func (s *PendingStore) Get(ctx context.Context, userID string) (*PendingSetup, error) {
	data, err := s.cache.Get(ctx, s.key(userID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrNoPendingSetup
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	var p PendingSetup
	if err := json.Unmarshal(data, &p); err != nil || p.Secret == "" {
		_ = s.cache.Delete(ctx, s.key(userID))
		return nil, ErrNoPendingSetup
	}
	return &p, nil
}

// Save stores p with a fresh ttl.
func (s *PendingStore) Save(ctx context.Context, userID string, p *PendingSetup, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.key(userID), data, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

// Touch rewrites p keeping the remaining ttl. It returns ErrNoPendingSetup
// if the entry expired in the meantime.
func (s *PendingStore) Touch(ctx context.Context, userID string, p *PendingSetup) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.cache.SetKeepTTL(ctx, s.key(userID), data); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return ErrNoPendingSetup
		}
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

// Delete discards the pending setup of userID.
func (s *PendingStore) Delete(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}
