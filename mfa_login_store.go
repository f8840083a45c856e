package storeauth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/storeauth/cache"
)

const (
	mfaLoginKeyPrefix      = "mfa:challenge:"
	mfaLoginRecordVersion1 = 1
	mfaLoginMaxAttempts    = 5
)

var (
	errMFALoginChallengeNotFound = errors.New("mfa challenge not found")
	errMFALoginChallengeExceeded = errors.New("mfa challenge attempts exceeded")
	errMFALoginChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// mfaLoginChallenge is the pending second step of an OAuth sign-in.
type mfaLoginChallenge struct {
	UserID    string
	Provider  string
	ExpiresAt int64
	Attempts  uint16
}

type mfaLoginChallengeStore struct {
	cache cache.Client
}

func newMFALoginChallengeStore(c cache.Client) *mfaLoginChallengeStore {
	return &mfaLoginChallengeStore{cache: c}
}

func (s *mfaLoginChallengeStore) key(challengeID string) string {
	return mfaLoginKeyPrefix + challengeID
}

func newChallengeID() (string, error) {
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func (s *mfaLoginChallengeStore) Save(ctx context.Context, challengeID string, record *mfaLoginChallenge, ttl time.Duration) error {
	encoded, err := encodeMFALoginChallenge(record)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, s.key(challengeID), encoded, ttl); err != nil {
		return fmt.Errorf("%w: %v", errMFALoginChallengeBackend, err)
	}
	return nil
}

func (s *mfaLoginChallengeStore) Get(ctx context.Context, challengeID string, now time.Time) (*mfaLoginChallenge, error) {
	data, err := s.cache.Get(ctx, s.key(challengeID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, errMFALoginChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errMFALoginChallengeBackend, err)
	}

	record, err := decodeMFALoginChallenge(data)
	if err != nil || now.Unix() > record.ExpiresAt {
		_ = s.cache.Delete(ctx, s.key(challengeID))
		return nil, errMFALoginChallengeNotFound
	}
	return record, nil
}

// Consume removes the challenge. It reports false when another request
// already consumed it.
func (s *mfaLoginChallengeStore) Consume(ctx context.Context, challengeID string) (bool, error) {
	if _, err := s.cache.Take(ctx, s.key(challengeID)); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", errMFALoginChallengeBackend, err)
	}
	return true, nil
}

// RecordFailure bumps the attempt counter, keeping the remaining TTL. Once
// the budget is spent the challenge is deleted and exceeded is reported.
func (s *mfaLoginChallengeStore) RecordFailure(ctx context.Context, challengeID string, record *mfaLoginChallenge) error {
	record.Attempts++
	if int(record.Attempts) >= mfaLoginMaxAttempts {
		if err := s.cache.Delete(ctx, s.key(challengeID)); err != nil {
			return fmt.Errorf("%w: %v", errMFALoginChallengeBackend, err)
		}
		return errMFALoginChallengeExceeded
	}

	updated, err := encodeMFALoginChallenge(record)
	if err != nil {
		return err
	}
	if err := s.cache.SetKeepTTL(ctx, s.key(challengeID), updated); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return errMFALoginChallengeNotFound
		}
		return fmt.Errorf("%w: %v", errMFALoginChallengeBackend, err)
	}
	return nil
}

func encodeMFALoginChallenge(record *mfaLoginChallenge) ([]byte, error) {
	if len(record.UserID) > 255 || len(record.Provider) > 255 {
		return nil, errors.New("mfa challenge field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(mfaLoginRecordVersion1)
	_ = binary.Write(&buf, binary.BigEndian, record.Attempts)
	_ = binary.Write(&buf, binary.BigEndian, record.ExpiresAt)
	buf.WriteByte(byte(len(record.UserID)))
	buf.WriteString(record.UserID)
	buf.WriteByte(byte(len(record.Provider)))
	buf.WriteString(record.Provider)

	return buf.Bytes(), nil
}

func decodeMFALoginChallenge(data []byte) (*mfaLoginChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != mfaLoginRecordVersion1 {
		return nil, errors.New("invalid mfa challenge version")
	}

	record := &mfaLoginChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.UserID, err = readByteString(reader); err != nil {
		return nil, err
	}
	if record.Provider, err = readByteString(reader); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in mfa challenge")
	}
	return record, nil
}

func readByteString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
