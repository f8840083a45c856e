package storeauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/internal/rate"
)

// SignIn authenticates with email and password, then with an MFA code when
// the user is enrolled, then gates on account status, and finally creates a
// session. Any failure leaves no session behind.
func (e *Engine) SignIn(ctx context.Context, req SignInRequest) (res *SignInResult, err error) {
	defer e.observe("sign_in", time.Now(), &err)

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	ip := clientIPFromContext(ctx)

	if err := e.limitError(ctx, "sign_in", e.limiter.CheckSignIn(ctx, email, ip)); err != nil {
		e.metrics.Inc(MetricSignInRateLimited)
		return nil, err
	}

	snap, err := e.accounts.SnapshotByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, e.failSignIn(ctx, email, "", ErrInvalidCredentials)
		}
		return nil, e.storeError(err)
	}
	if !snap.HasPassword || !e.hasher.Verify(snap.PasswordHash, req.Password) {
		return nil, e.failSignIn(ctx, email, snap.ID, ErrInvalidCredentials)
	}

	if snap.MFAEnabled {
		if req.MFACode == "" {
			e.metrics.Inc(MetricMFARequired)
			e.emitAudit(ctx, auditEventSignInFailure, false, snap.ID, "", ErrMFARequired, nil)
			return nil, ErrMFARequired
		}
		if err := e.verifyMFACode(ctx, snap.ID, req.MFACode); err != nil {
			e.emitAudit(ctx, auditEventSignInFailure, false, snap.ID, "", err, nil)
			return nil, err
		}
	}

	if err := statusError(snap.Status); err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, snap.ID, "", err, nil)
		return nil, err
	}

	if err := e.limiter.ResetSignIn(ctx, email); err != nil {
		e.log.Warn("reset sign-in counter", zap.Error(err))
	}
	e.upgradePasswordHash(ctx, snap, req.Password)

	res, err = e.establishSession(ctx, snap.ID)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, snap.ID, res.Session.ID, nil, func() map[string]string {
		return map[string]string{"method": "password"}
	})
	return res, nil
}

func (e *Engine) failSignIn(ctx context.Context, email, userID string, cause *Error) error {
	e.metrics.Inc(MetricSignInFailure)
	// the next attempt is refused by CheckSignIn once the budget is spent
	if err := e.limiter.RecordSignInFailure(ctx, email, clientIPFromContext(ctx)); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.log.Warn("record sign-in failure", zap.Error(err))
	}
	e.emitAudit(ctx, auditEventSignInFailure, false, userID, "", cause, nil)
	return cause
}

// upgradePasswordHash rehashes legacy or weaker hashes. Failures are logged
// and never block the sign-in.
func (e *Engine) upgradePasswordHash(ctx context.Context, snap account.Snapshot, plaintext string) {
	if !e.config.Session.UpgradePasswordOnSignIn || !e.hasher.NeedsUpgrade(snap.PasswordHash) {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err == nil {
		err = e.accounts.UpdatePasswordHash(ctx, snap.ID, hash)
	}
	if err != nil {
		e.log.Warn("password hash upgrade failed", zap.String("user_id", snap.ID), zap.Error(err))
	}
}
