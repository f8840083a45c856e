package storeauth

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/mfa"
)

// SetupMFA starts or resumes enrollment. A pending setup is reused with its
// remaining lifetime so repeated calls return the same secret and codes.
func (e *Engine) SetupMFA(ctx context.Context, userID string) (res *MFASetup, err error) {
	defer e.observe("mfa_setup", time.Now(), &err)

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return nil, e.storeError(err)
	}
	if snap.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	pending, err := e.pending.Get(ctx, userID)
	switch {
	case err == nil:
		if err := e.pending.Touch(ctx, userID, pending); err != nil {
			if !errors.Is(err, mfa.ErrNoPendingSetup) {
				return nil, withCause(ErrBackendUnavailable, err)
			}
			pending = nil
		}
	case errors.Is(err, mfa.ErrNoPendingSetup):
		pending = nil
	default:
		return nil, withCause(ErrBackendUnavailable, err)
	}

	if pending == nil {
		key, err := e.totp.GenerateKey(snap.Email, "")
		if err != nil {
			return nil, withCause(ErrInternal, err)
		}
		codes, err := mfa.NewBackupCodes(mfa.BackupCodeCount)
		if err != nil {
			return nil, withCause(ErrInternal, err)
		}
		pending = &mfa.PendingSetup{Secret: key.Secret(), BackupCodes: codes, CreatedAt: e.now().UTC()}
		if err := e.pending.Save(ctx, userID, pending, e.config.MFA.PendingTTL); err != nil {
			return nil, withCause(ErrBackendUnavailable, err)
		}
	}

	key, err := e.totp.GenerateKey(snap.Email, pending.Secret)
	if err != nil {
		return nil, withCause(ErrInternal, err)
	}
	qr, err := mfa.QRCodeDataURL(key)
	if err != nil {
		return nil, withCause(ErrInternal, err)
	}

	e.emitAudit(ctx, auditEventMFASetupRequested, true, userID, "", nil, nil)
	return &MFASetup{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		QRCode:      qr,
		BackupCodes: slices.Clone(pending.BackupCodes),
	}, nil
}

// EnableMFA confirms a pending setup with two distinct valid TOTP codes.
// On any failure the user stays unenrolled.
func (e *Engine) EnableMFA(ctx context.Context, userID, code1, code2 string) (err error) {
	defer e.observe("mfa_enable", time.Now(), &err)

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if snap.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}

	pending, err := e.pending.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, mfa.ErrNoPendingSetup) {
			return ErrMFASetupExpired
		}
		return withCause(ErrBackendUnavailable, err)
	}

	if err := e.checkCodePair(ctx, userID, pending.Secret, code1, code2); err != nil {
		return err
	}

	secret := account.MFASecret{
		UserID:         userID,
		Secret:         pending.Secret,
		AvailableCodes: mfa.HashBackupCodes(userID, pending.BackupCodes),
		EnabledAt:      e.now().UTC(),
	}
	if err := e.accounts.EnableMFA(ctx, secret); err != nil {
		return e.storeError(err)
	}
	if err := e.pending.Delete(ctx, userID); err != nil {
		e.log.Warn("delete pending mfa setup", zap.String("user_id", userID), zap.Error(err))
	}

	e.metrics.Inc(MetricMFAEnabled)
	e.emitAudit(ctx, auditEventMFAEnabled, true, userID, "", nil, nil)
	return nil
}

// DisableMFA removes the second factor after two distinct valid TOTP codes.
func (e *Engine) DisableMFA(ctx context.Context, userID, code1, code2 string) (err error) {
	defer e.observe("mfa_disable", time.Now(), &err)

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if !snap.MFAEnabled {
		return ErrMFANotEnabled
	}

	secret, err := e.accounts.MFASecret(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrMFANotEnabled
		}
		return e.storeError(err)
	}

	if err := e.checkCodePair(ctx, userID, secret.Secret, code1, code2); err != nil {
		return err
	}

	if err := e.accounts.DisableMFA(ctx, userID); err != nil {
		return e.storeError(err)
	}

	e.metrics.Inc(MetricMFADisabled)
	e.emitAudit(ctx, auditEventMFADisabled, true, userID, "", nil, nil)
	return nil
}

func (e *Engine) checkCodePair(ctx context.Context, userID, secret, code1, code2 string) error {
	if err := e.limitError(ctx, "mfa", e.limiter.CheckMFA(ctx, userID)); err != nil {
		return err
	}

	code1, code2 = strings.TrimSpace(code1), strings.TrimSpace(code2)
	now := e.now()
	if code1 == code2 || !e.totp.Validate(code1, secret, now) || !e.totp.Validate(code2, secret, now) {
		e.recordMFAFailure(ctx, userID)
		return ErrMFAInvalid
	}
	return nil
}

// verifyMFACode accepts a 6 digit TOTP code or a backup code. Backup codes
// are consumed through the repository so that each is accepted once.
func (e *Engine) verifyMFACode(ctx context.Context, userID, code string) error {
	if err := e.limitError(ctx, "mfa", e.limiter.CheckMFA(ctx, userID)); err != nil {
		return err
	}

	secret, err := e.accounts.MFASecret(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.recordMFAFailure(ctx, userID)
			return ErrMFAInvalid
		}
		return e.storeError(err)
	}

	code = strings.TrimSpace(code)
	if mfa.IsTOTPCode(code) {
		if !e.totp.Validate(code, secret.Secret, e.now()) {
			e.recordMFAFailure(ctx, userID)
			return ErrMFAInvalid
		}
		e.resetMFAFailures(ctx, userID)
		return nil
	}

	hash := mfa.HashBackupCode(userID, code)
	if slices.Contains(secret.UsedCodes, hash) {
		e.recordMFAFailure(ctx, userID)
		return ErrBackupCodeUsed
	}
	if !slices.Contains(secret.AvailableCodes, hash) {
		e.recordMFAFailure(ctx, userID)
		return ErrMFAInvalid
	}

	ok, err := e.accounts.ConsumeBackupCode(ctx, userID, hash)
	if err != nil {
		return e.storeError(err)
	}
	if !ok {
		// a concurrent request consumed it first
		return ErrBackupCodeUsed
	}

	e.resetMFAFailures(ctx, userID)
	e.metrics.Inc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, "", nil, func() map[string]string {
		return map[string]string{"remaining": strconv.Itoa(len(secret.AvailableCodes) - 1)}
	})
	return nil
}

func (e *Engine) recordMFAFailure(ctx context.Context, userID string) {
	e.metrics.Inc(MetricMFAFailure)
	e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", ErrMFAInvalid, nil)
	if err := e.limiter.RecordMFAFailure(ctx, userID); err != nil {
		e.log.Debug("record mfa failure", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) resetMFAFailures(ctx context.Context, userID string) {
	if err := e.limiter.ResetMFA(ctx, userID); err != nil {
		e.log.Warn("reset mfa counter", zap.String("user_id", userID), zap.Error(err))
	}
}
