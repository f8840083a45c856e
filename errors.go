package storeauth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/storeauth/cookiecrypt"
)

// Kind classifies an engine failure for transport mapping.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindBadRequest
	KindUnauthorized
	KindPermission
	KindNotFound
	KindRateLimited
	KindConfiguration
	KindDecryption
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindConfiguration:
		return "configuration"
	case KindDecryption:
		return "decryption"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed failure returned by Engine methods. Message is safe to
// show to end users unless Kind is KindInternal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and message, so a sentinel
// still matches after withCause attached a cause to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func withCause(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

var (
	ErrUserExists               = newError(KindBadRequest, "User already exists")
	ErrInvalidCredentials       = newError(KindBadRequest, "Invalid email or password")
	ErrMFARequired              = newError(KindBadRequest, "MFA code is required")
	ErrMFAInvalid               = newError(KindBadRequest, "Invalid MFA code")
	ErrBackupCodeUsed           = newError(KindBadRequest, "Backup code has already been used")
	ErrMFAAlreadyEnabled        = newError(KindBadRequest, "Multi-factor authentication (MFA) has been enabled")
	ErrMFASetupExpired          = newError(KindBadRequest, "The multi-factor authentication (MFA) code has expired")
	ErrMFANotEnabled            = newError(KindBadRequest, "Multi-factor authentication (MFA) has been disabled")
	ErrMFAChallengeExpired      = newError(KindBadRequest, "MFA challenge has expired, please sign in again")
	ErrInvalidEmail             = newError(KindBadRequest, "Invalid email")
	ErrEmailUnverified          = newError(KindBadRequest, "Please verify your email address before using password recovery")
	ErrEmailAlreadyVerified     = newError(KindBadRequest, "Email address is already verified")
	ErrResetTokenExpired        = newError(KindBadRequest, "Reset token has expired")
	ErrReactivationTokenExpired = newError(KindBadRequest, "Reactivation token has expired")
	ErrVerificationTokenExpired = newError(KindBadRequest, "Email verification token has expired")
	ErrAccountActive            = newError(KindBadRequest, "Your account is active")
	ErrAccountClosed            = newError(KindBadRequest, "Your account is currently closed")
	ErrAccountLocked            = newError(KindBadRequest, "Your account has been locked please contact the administrator")
	ErrPasswordIncorrect        = newError(KindBadRequest, "Current password is incorrect")
	ErrPasswordReuse            = newError(KindBadRequest, "New password must be different from current password")
	ErrPasswordNotSet           = newError(KindBadRequest, "Account does not have a password")
	ErrPasswordAlreadySet       = newError(KindBadRequest, "Account already has a password")
	ErrOAuthFailed              = newError(KindBadRequest, "OAuth sign-in failed, please try again")
	ErrOAuthStateInvalid        = newError(KindBadRequest, "OAuth request has expired, please try again")
	ErrOAuthProviderUnknown     = newError(KindNotFound, "Unknown OAuth provider")
	ErrOAuthLinkedElsewhere     = newError(KindBadRequest, "This account is already connected to another user")
	ErrOAuthLinkNotFound        = newError(KindNotFound, "OAuth connection not found")
	ErrLastSignInMethod         = newError(KindBadRequest, "Cannot remove the last sign-in method")
	ErrUnauthorized             = newError(KindUnauthorized, "Unauthorized")
	ErrPermissionDenied         = newError(KindPermission, "You do not have permission to perform this action")
	ErrEmailNotVerified         = newError(KindPermission, "Your email hasn't been verified")
	ErrAccountDisabled          = newError(KindPermission, "Your account has been locked please contact the administrator")
	ErrUserNotFound             = newError(KindNotFound, "User not found")
	ErrSessionNotFound          = newError(KindNotFound, "Session not found")
	ErrRateLimited              = newError(KindRateLimited, "Too many requests, please try again later")
	ErrInvalidStatus            = newError(KindValidation, "Invalid account status")
	ErrBackendUnavailable       = newError(KindInternal, "backend unavailable")
	ErrInternal                 = newError(KindInternal, "Internal server error")
	ErrInvalidConfig            = newError(KindConfiguration, "invalid configuration")
	ErrEngineNotReady           = newError(KindConfiguration, "engine not initialized")
)

// KindOf classifies err. Errors that are not *Error map through the
// cookiecrypt sentinels and default to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, cookiecrypt.ErrInvalidKey):
		return KindConfiguration
	case errors.Is(err, cookiecrypt.ErrDecryption):
		return KindDecryption
	}
	return KindInternal
}

// PublicMessage returns the message a client may see for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindInternal, KindConfiguration, KindDecryption:
			return ErrInternal.Message
		}
		return e.Message
	}
	return ErrInternal.Message
}
