package storeauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/storeauth/actiontoken"
)

// VerifyEmail consumes an email verification token and marks the owner's
// email verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (err error) {
	defer e.observe("verify_email", time.Now(), &err)

	userID, err := e.consumeActionToken(ctx, token, actiontoken.EmailVerification)
	if err != nil {
		if errors.Is(err, errActionTokenInvalid) {
			return ErrVerificationTokenExpired
		}
		return err
	}
	if err := e.accounts.MarkEmailVerified(ctx, userID); err != nil {
		return e.storeError(err)
	}

	e.emitAudit(ctx, auditEventEmailVerified, true, userID, "", nil, nil)
	return nil
}

// ResendVerification sends the live verification link again, issuing a new
// one only when the stored token has expired.
func (e *Engine) ResendVerification(ctx context.Context, userID string) (err error) {
	defer e.observe("resend_verification", time.Now(), &err)

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if snap.EmailVerified {
		return ErrEmailAlreadyVerified
	}
	if err := e.limitError(ctx, "resend_verification", e.limiter.AllowVerification(ctx, userID)); err != nil {
		return err
	}

	token, err := e.issueActionToken(ctx, userID, actiontoken.EmailVerification)
	if err != nil {
		return err
	}
	if err := e.deliver(ctx, "resend_verification", func(ctx context.Context) error {
		return e.notifier.SendEmailVerification(ctx, snap.Email, e.link(pathConfirmEmail, token))
	}); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventVerificationResent, true, userID, "", nil, nil)
	return nil
}
