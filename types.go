package storeauth

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
	internalaudit "github.com/MrEthical07/storeauth/internal/audit"
)

// SignUpRequest is the input of SignUp.
type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EditProfileRequest is the input of EditProfile. Nil fields are unchanged.
type EditProfileRequest struct {
	Username *string `json:"username"`
	Picture  *string `json:"picture"`
}

// SignUpResult carries the new user id and the signed verification token
// that was sent to the user.
type SignUpResult struct {
	UserID            string `json:"userId"`
	VerificationToken string `json:"-"`
}

// SignInRequest is the input of SignIn. MFACode is either a 6 digit TOTP
// code or a backup code.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode,omitempty"`
}

// Session is an established session. Cookie is the encrypted session id to
// send as the session cookie value.
type Session struct {
	ID        string
	Cookie    string
	ExpiresAt time.Time
}

// SignInResult is returned by every operation that establishes a session.
type SignInResult struct {
	Session Session
	Profile account.Profile
}

// Identity is the caller identity resolved from a session cookie. The zero
// value is anonymous.
type Identity struct {
	Profile   account.Profile
	SessionID string
	// ClearCookie asks the transport to expire a stale cookie.
	ClearCookie   bool
	authenticated bool
}

// Authenticated reports whether the identity carries a live session.
func (i Identity) Authenticated() bool { return i.authenticated }

// UserID returns the id of the signed-in user, or "".
func (i Identity) UserID() string {
	if !i.authenticated {
		return ""
	}
	return i.Profile.ID
}

// Active reports whether the signed-in user is in the Active state.
func (i Identity) Active() bool {
	return i.authenticated && i.Profile.Status == account.Active
}

/*
====================================
OAUTH TYPES
====================================
*/

// OAuthIdentity is what a provider reports about the authenticated user.
type OAuthIdentity struct {
	Provider      string
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OAuthProvider is an authorization-code provider. Implementations must be
// safe for concurrent use and must honor ctx for their HTTP calls.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (OAuthIdentity, error)
}

// OAuthIntent is remembered with the state parameter for the callback.
type OAuthIntent struct {
	// Redirect is a client-relative path to land on after the callback.
	Redirect string `json:"redirect,omitempty"`
	// ConnectUserID links the provider to this user instead of signing in.
	ConnectUserID string `json:"connectUserId,omitempty"`
}

// OAuthOutcome is the result class of an OAuth callback.
type OAuthOutcome uint8

const (
	OAuthSignedIn OAuthOutcome = iota + 1
	// OAuthUnlinkedAccountExists means a local account owns the email but
	// the provider is not linked. No user or session is created.
	OAuthUnlinkedAccountExists
	// OAuthMFARequired means the user must complete CompleteOAuthMFA.
	OAuthMFARequired
	// OAuthConnected means the provider was linked to ConnectUserID.
	OAuthConnected
)

func (o OAuthOutcome) String() string {
	switch o {
	case OAuthSignedIn:
		return "signed_in"
	case OAuthUnlinkedAccountExists:
		return "unlinked_account_exists"
	case OAuthMFARequired:
		return "mfa_required"
	case OAuthConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// OAuthResult is returned by OAuthCallback.
type OAuthResult struct {
	Outcome  OAuthOutcome
	Provider string
	// Redirect echoes OAuthIntent.Redirect.
	Redirect string
	// SignIn is set for OAuthSignedIn.
	SignIn *SignInResult
	// Email is set for OAuthUnlinkedAccountExists.
	Email string
	// Challenge is set for OAuthMFARequired.
	Challenge string
}

/*
====================================
NOTIFICATION
====================================
*/

// Notifier delivers action-token links. link is an absolute URL on the
// client application.
type Notifier interface {
	SendEmailVerification(ctx context.Context, email, link string) error
	SendPasswordRecovery(ctx context.Context, email, link string) error
	SendReactivation(ctx context.Context, email, link string) error
}

type noopNotifier struct{}

func (noopNotifier) SendEmailVerification(context.Context, string, string) error { return nil }
func (noopNotifier) SendPasswordRecovery(context.Context, string, string) error  { return nil }
func (noopNotifier) SendReactivation(context.Context, string, string) error      { return nil }

/*
====================================
MFA AND SESSIONS
====================================
*/

// MFASetup is returned by SetupMFA. BackupCodes are plaintext and shown
// once; only their digests are stored on enable.
type MFASetup struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauthUrl"`
	QRCode      string   `json:"qrCode"`
	BackupCodes []string `json:"backupCodes"`
}

// SessionInfo describes one live session of a user. Handle identifies the
// session without exposing its id.
type SessionInfo struct {
	Handle    string    `json:"handle"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

/*
====================================
AUDIT
====================================
*/

// AuditEvent is one audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs events.
type ZapSink = internalaudit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapSink(l *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(l)
}
