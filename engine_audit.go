package storeauth

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/storeauth/internal/audit"
)

const (
	auditEventSignUp               = "sign_up"
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventSignOut              = "sign_out"
	auditEventSignOutAll           = "sign_out_all"
	auditEventSessionRevoked       = "session_revoked"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventMFASetupRequested    = "mfa_setup_requested"
	auditEventMFAEnabled           = "mfa_enabled"
	auditEventMFADisabled          = "mfa_disabled"
	auditEventMFAFailure           = "mfa_failure"
	auditEventBackupCodeUsed       = "backup_code_used"
	auditEventOAuthSignIn          = "oauth_sign_in"
	auditEventOAuthFailure         = "oauth_failure"
	auditEventOAuthLinked          = "oauth_linked"
	auditEventOAuthUnlinked        = "oauth_unlinked"
	auditEventRecoveryRequested    = "recovery_requested"
	auditEventPasswordReset        = "password_reset"
	auditEventPasswordChanged      = "password_changed"
	auditEventPasswordCreated      = "password_created"
	auditEventEmailChanged         = "email_changed"
	auditEventProfileUpdated       = "profile_updated"
	auditEventEmailVerified        = "email_verified"
	auditEventVerificationResent   = "verification_resent"
	auditEventReactivationRequest  = "reactivation_requested"
	auditEventAccountReactivated   = "account_reactivated"
	auditEventAccountStatusChanged = "account_status_changed"
)

// criticalAuditEvents are queued even when the dispatcher would otherwise
// drop on a full buffer.
var criticalAuditEvents = []string{
	auditEventAccountStatusChanged,
	auditEventAccountReactivated,
	auditEventPasswordReset,
	auditEventPasswordChanged,
	auditEventEmailChanged,
	auditEventMFAEnabled,
	auditEventMFADisabled,
	auditEventOAuthLinked,
	auditEventOAuthUnlinked,
}

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrMFARequired        AuditErrorCode = "mfa_required"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrBackupCodeUsed     AuditErrorCode = "backup_code_used"
	auditErrAccountClosed      AuditErrorCode = "account_closed"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrPermission         AuditErrorCode = "permission_denied"
	auditErrOAuth              AuditErrorCode = "oauth_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := internalaudit.NewEvent(eventType, e.now())
	event.UserID = userID
	event.SessionID = sessionID
	event.IP = clientIPFromContext(ctx)
	event.Success = success
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFAInvalid):
		return auditErrMFAInvalid
	case errors.Is(err, ErrBackupCodeUsed):
		return auditErrBackupCodeUsed
	case errors.Is(err, ErrAccountClosed):
		return auditErrAccountClosed
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrResetTokenExpired),
		errors.Is(err, ErrReactivationTokenExpired),
		errors.Is(err, ErrVerificationTokenExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermission
	case errors.Is(err, ErrOAuthFailed),
		errors.Is(err, ErrOAuthStateInvalid),
		errors.Is(err, ErrOAuthLinkedElsewhere):
		return auditErrOAuth
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	}

	if KindOf(err) == KindInternal {
		return auditErrInternal
	}
	return AuditErrorCode(KindOf(err).String())
}
