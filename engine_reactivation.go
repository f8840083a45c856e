package storeauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
)

// RequestReactivation sends a reactivation link to a Suspended account.
func (e *Engine) RequestReactivation(ctx context.Context, email string) (err error) {
	defer e.observe("request_reactivation", time.Now(), &err)

	email = normalizeEmail(email)
	if validateEmail(email) != nil {
		return ErrInvalidEmail
	}
	if err := e.limitError(ctx, "request_reactivation", e.limiter.AllowRecovery(ctx, email)); err != nil {
		return err
	}

	snap, err := e.accounts.SnapshotByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrInvalidEmail
		}
		return e.storeError(err)
	}
	switch snap.Status {
	case account.Active:
		return ErrAccountActive
	case account.Disabled:
		return ErrAccountLocked
	}

	token, err := e.issueActionToken(ctx, snap.ID, actiontoken.ReActivate)
	if err != nil {
		return err
	}
	if err := e.deliver(ctx, "request_reactivation", func(ctx context.Context) error {
		return e.notifier.SendReactivation(ctx, snap.Email, e.link(pathReactivate, token))
	}); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventReactivationRequest, true, snap.ID, "", nil, nil)
	return nil
}

// ReActivateAccount consumes a reactivation token and returns a Suspended
// account to Active. Disabled accounts stay locked.
func (e *Engine) ReActivateAccount(ctx context.Context, token string) (err error) {
	defer e.observe("reactivate_account", time.Now(), &err)

	userID, err := e.consumeActionToken(ctx, token, actiontoken.ReActivate)
	if err != nil {
		if errors.Is(err, errActionTokenInvalid) {
			return ErrReactivationTokenExpired
		}
		return err
	}

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if snap.Status == account.Disabled {
		e.emitAudit(ctx, auditEventAccountReactivated, false, userID, "", ErrAccountLocked, nil)
		return ErrAccountLocked
	}
	if snap.Status != account.Active {
		if err := e.accounts.UpdateStatus(ctx, userID, account.Active); err != nil {
			return e.storeError(err)
		}
		e.metrics.Inc(MetricStatusChanged)
	}

	e.emitAudit(ctx, auditEventAccountReactivated, true, userID, "", nil, nil)
	return nil
}

// Disactivate closes the caller's own account and ends all its sessions.
func (e *Engine) Disactivate(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if err := statusError(snap.Status); err != nil {
		return err
	}
	return e.changeStatus(ctx, userID, account.Suspended, func() map[string]string {
		return map[string]string{"from": snap.Status.String(), "to": account.Suspended.String(), "by": "self"}
	})
}

// SetStatus is the manager-only administrative status change. Any state
// other than Active revokes every session of the target user.
func (e *Engine) SetStatus(ctx context.Context, actorRole account.Role, userID string, status account.Status) error {
	if actorRole != account.RoleManager {
		return ErrPermissionDenied
	}
	if status.String() == "UNKNOWN" {
		return ErrInvalidStatus
	}
	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if snap.Status == status {
		return nil
	}
	return e.changeStatus(ctx, userID, status, func() map[string]string {
		return map[string]string{"from": snap.Status.String(), "to": status.String(), "by": string(actorRole)}
	})
}

func (e *Engine) changeStatus(ctx context.Context, userID string, to account.Status, meta func() map[string]string) error {
	if err := e.accounts.UpdateStatus(ctx, userID, to); err != nil {
		return e.storeError(err)
	}
	if to != account.Active {
		if err := e.revokeSessions(ctx, userID, ""); err != nil {
			return err
		}
	}
	e.metrics.Inc(MetricStatusChanged)
	e.emitAudit(ctx, auditEventAccountStatusChanged, true, userID, "", nil, meta)
	return nil
}
