package storeauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
)

// ChangePassword replaces the password of userID after verifying the
// current one. Every session except currentSessionID is revoked.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) (err error) {
	defer e.observe("change_password", time.Now(), &err)

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if !snap.HasPassword {
		return ErrPasswordNotSet
	}
	if !e.hasher.Verify(snap.PasswordHash, oldPassword) {
		e.emitAudit(ctx, auditEventPasswordChanged, false, userID, currentSessionID, ErrPasswordIncorrect, nil)
		return ErrPasswordIncorrect
	}
	if oldPassword == newPassword {
		return ErrPasswordReuse
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return withCause(ErrInternal, err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return e.storeError(err)
	}
	if err := e.revokeSessions(ctx, userID, currentSessionID); err != nil {
		return err
	}

	e.metrics.Inc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, userID, currentSessionID, nil, nil)
	return nil
}

// CreatePassword sets a first password on an account that signed up
// through OAuth.
func (e *Engine) CreatePassword(ctx context.Context, userID, newPassword string) (err error) {
	defer e.observe("create_password", time.Now(), &err)

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if snap.HasPassword {
		return ErrPasswordAlreadySet
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return withCause(ErrInternal, err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return e.storeError(err)
	}

	e.emitAudit(ctx, auditEventPasswordCreated, true, userID, "", nil, nil)
	return nil
}

// ChangeEmail moves the account to newEmail, marks it unverified and sends
// a verification link to the new address.
func (e *Engine) ChangeEmail(ctx context.Context, userID, newEmail string) (err error) {
	defer e.observe("change_email", time.Now(), &err)

	email := normalizeEmail(newEmail)
	if err := validateEmail(email); err != nil {
		return err
	}

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if snap.Email == email {
		return ErrUserExists
	}

	if err := e.accounts.UpdateEmail(ctx, userID, email); err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return ErrUserExists
		}
		return e.storeError(err)
	}

	token, err := e.issueActionToken(ctx, userID, actiontoken.EmailVerification)
	if err != nil {
		return err
	}
	_ = e.deliver(ctx, "change_email", func(ctx context.Context) error {
		return e.notifier.SendEmailVerification(ctx, email, e.link(pathConfirmEmail, token))
	})

	e.emitAudit(ctx, auditEventEmailChanged, true, userID, "", nil, nil)
	return nil
}
