package storeauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
)

// RecoverAccount sends a password recovery link to a verified email.
func (e *Engine) RecoverAccount(ctx context.Context, email string) (err error) {
	defer e.observe("recover_account", time.Now(), &err)

	email = normalizeEmail(email)
	if validateEmail(email) != nil {
		return ErrInvalidEmail
	}
	if err := e.limitError(ctx, "recover_account", e.limiter.AllowRecovery(ctx, email)); err != nil {
		return err
	}

	snap, err := e.accounts.SnapshotByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrInvalidEmail
		}
		return e.storeError(err)
	}
	if !snap.EmailVerified {
		return ErrEmailUnverified
	}

	token, err := e.issueActionToken(ctx, snap.ID, actiontoken.RecoverAccount)
	if err != nil {
		return err
	}
	if err := e.deliver(ctx, "recover_account", func(ctx context.Context) error {
		return e.notifier.SendPasswordRecovery(ctx, snap.Email, e.link(pathResetPassword, token))
	}); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventRecoveryRequested, true, snap.ID, "", nil, nil)
	return nil
}

// ResetPassword consumes a recovery token, stores the new password and
// signs the user out everywhere.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer e.observe("reset_password", time.Now(), &err)

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return withCause(ErrInternal, err)
	}

	userID, err := e.consumeActionToken(ctx, token, actiontoken.RecoverAccount)
	if err != nil {
		if errors.Is(err, errActionTokenInvalid) {
			e.emitAudit(ctx, auditEventPasswordReset, false, "", "", ErrResetTokenExpired, nil)
			return ErrResetTokenExpired
		}
		return err
	}

	if err := e.accounts.UpdatePasswordHash(ctx, userID, hash); err != nil {
		e.restoreActionToken(ctx, userID, token, actiontoken.RecoverAccount)
		return e.storeError(err)
	}
	if err := e.revokeSessions(ctx, userID, ""); err != nil {
		return err
	}

	e.metrics.Inc(MetricPasswordReset)
	e.emitAudit(ctx, auditEventPasswordReset, true, userID, "", nil, nil)
	return nil
}
