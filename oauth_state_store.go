package storeauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/storeauth/cache"
)

const oauthStateKeyPrefix = "oauth:state:"

var errOAuthStateNotFound = errors.New("oauth state not found")

type oauthState struct {
	Provider string      `json:"p"`
	Intent   OAuthIntent `json:"i"`
}

// oauthStateStore keeps the state parameter of in-flight authorization
// requests. States are single use.
type oauthStateStore struct {
	cache cache.Client
}

func newOAuthStateStore(c cache.Client) *oauthStateStore {
	return &oauthStateStore{cache: c}
}

func (s *oauthStateStore) Save(ctx context.Context, state string, rec oauthState, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, oauthStateKeyPrefix+state, data, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *oauthStateStore) Take(ctx context.Context, state string) (*oauthState, error) {
	if state == "" {
		return nil, errOAuthStateNotFound
	}
	data, err := s.cache.Take(ctx, oauthStateKeyPrefix+state)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, errOAuthStateNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var rec oauthState
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errOAuthStateNotFound
	}
	return &rec, nil
}
