package storeauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
)

const actionTokenBytes = 20

var errActionTokenInvalid = errors.New("action token invalid or consumed")

func (e *Engine) actionTokenTTL(typ actiontoken.Type) time.Duration {
	switch typ {
	case actiontoken.EmailVerification:
		return e.config.ActionTokens.EmailVerification
	case actiontoken.RecoverAccount:
		return e.config.ActionTokens.RecoverAccount
	case actiontoken.ReActivate:
		return e.config.ActionTokens.ReActivate
	default:
		return 0
	}
}

// issueActionToken returns a signed token for the user's live token of typ.
// A stored token whose expiry is still ahead is reused unchanged; otherwise a
// fresh value replaces it.
func (e *Engine) issueActionToken(ctx context.Context, userID string, typ actiontoken.Type) (string, error) {
	now := e.now()

	stored, err := e.accounts.ActionToken(ctx, userID, typ)
	if err != nil {
		return "", e.storeError(err)
	}

	if stored != nil && stored.Value != "" && stored.ExpiresAt.After(now) {
		e.metrics.Inc(MetricActionTokenReused)
	} else {
		value, err := randomHex(actionTokenBytes)
		if err != nil {
			return "", withCause(ErrInternal, err)
		}
		stored = &account.ActionToken{
			Type:      typ,
			Value:     value,
			ExpiresAt: now.Add(e.actionTokenTTL(typ)).Truncate(time.Second),
		}
		if err := e.accounts.SaveActionToken(ctx, userID, *stored); err != nil {
			return "", e.storeError(err)
		}
		e.metrics.Inc(MetricActionTokenIssued)
	}

	signed, err := e.tokens.Issue(typ, stored.Value, stored.ExpiresAt)
	if err != nil {
		return "", withCause(ErrInternal, err)
	}
	return signed, nil
}

// consumeActionToken verifies token and clears the stored value in one
// conditional write. It returns errActionTokenInvalid for anything that must
// be treated as an absent token.
func (e *Engine) consumeActionToken(ctx context.Context, token string, typ actiontoken.Type) (string, error) {
	claims, err := e.tokens.VerifyType(token, typ)
	if err != nil {
		e.metrics.Inc(MetricActionTokenRejected)
		return "", errActionTokenInvalid
	}

	userID, err := e.accounts.ConsumeActionToken(ctx, typ, claims.Session, e.now())
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.metrics.Inc(MetricActionTokenRejected)
			return "", errActionTokenInvalid
		}
		return "", e.storeError(err)
	}
	return userID, nil
}

// restoreActionToken puts back a token consumed by an operation whose later
// write failed, unless a live token of typ was issued in the meantime.
func (e *Engine) restoreActionToken(ctx context.Context, userID, token string, typ actiontoken.Type) {
	claims, err := e.tokens.VerifyType(token, typ)
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	now := e.now()
	current, err := e.accounts.ActionToken(ctx, userID, typ)
	if err != nil {
		e.log.Warn("action token restore skipped", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if current != nil && current.Value != "" && current.ExpiresAt.After(now) {
		return
	}
	if err := e.accounts.SaveActionToken(ctx, userID, account.ActionToken{
		Type:      typ,
		Value:     claims.Session,
		ExpiresAt: claims.ExpiresAt.Time,
	}); err != nil {
		e.log.Warn("action token restore failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// deliver sends a link and logs delivery failures. The token stays valid
// so the user can ask again.
func (e *Engine) deliver(ctx context.Context, op string, send func(context.Context) error) error {
	if err := send(ctx); err != nil {
		e.log.Error("notification failed", zap.String("op", op), zap.Error(err))
		return withCause(ErrInternal, err)
	}
	return nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
