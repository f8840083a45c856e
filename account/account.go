// Package account defines the data-access boundary between the
// authentication engine and the system of record.
//
// Every read returns a narrow view built for one use case: [Snapshot] for
// authentication decisions, [Profile] for identity resolution and
// self-service endpoints. Views are constructed here and never widened by
// callers.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/storeauth/actiontoken"
)

var (
	// ErrNotFound is returned when a user, link or secret does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrEmailTaken is returned when another user owns the email.
	ErrEmailTaken = errors.New("account: email already registered")
	// ErrLinkExists is returned when a (provider, providerID) pair is already linked.
	ErrLinkExists = errors.New("account: oauth link already exists")
)

// Status is the single authoritative account state.
type Status uint8

const (
	// Active accounts may hold sessions.
	Active Status = iota
	// Suspended accounts were closed by their owner and may reactivate.
	Suspended
	// Disabled accounts were locked by a manager.
	Disabled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Suspended:
		return "SUSPENDED"
	case Disabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ACTIVE":
		return Active, nil
	case "SUSPENDED":
		return Suspended, nil
	case "DISABLED":
		return Disabled, nil
	default:
		return 0, errors.New("account: unknown status " + s)
	}
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Role is a coarse permission class.
type Role string

const (
	RoleManager  Role = "MANAGER"
	RoleSaler    Role = "SALER"
	RoleBloger   Role = "BLOGER"
	RoleCustomer Role = "CUSTOMER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleSaler, RoleBloger, RoleCustomer:
		return true
	default:
		return false
	}
}

// Snapshot is the authentication view of a user.
type Snapshot struct {
	ID            string
	Email         string
	EmailVerified bool
	PasswordHash  string
	HasPassword   bool
	Status        Status
	MFAEnabled    bool
	Role          Role
}

// Profile is the public view of a user.
type Profile struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	EmailVerified bool        `json:"emailVerified"`
	Username      string      `json:"username"`
	Picture       string      `json:"picture,omitempty"`
	Role          Role        `json:"role"`
	Status        Status      `json:"status"`
	HasPassword   bool        `json:"hasPassword"`
	MFAEnabled    bool        `json:"mfaEnabled"`
	Providers     []OAuthLink `json:"oauthProviders"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// NewUser is the input to CreateUser. PasswordHash is empty for
// password-less accounts.
type NewUser struct {
	ID            string
	Email         string
	Username      string
	Picture       string
	PasswordHash  string
	EmailVerified bool
	Role          Role
}

// ProfileUpdate carries the self-service profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Username *string
	Picture  *string
}

// ActionToken is the stored half of an action token.
type ActionToken struct {
	Type      actiontoken.Type
	Value     string
	ExpiresAt time.Time
}

// Live reports whether the token can still be consumed at now.
func (t *ActionToken) Live(now time.Time) bool {
	return t != nil && t.Value != "" && !now.After(t.ExpiresAt)
}

// MFASecret is the enrolled second factor of a user. Backup codes are
// stored as digests; consumption moves a digest from Available to Used.
type MFASecret struct {
	UserID         string
	Secret         string
	AvailableCodes []string
	UsedCodes      []string
	EnabledAt      time.Time
}

// OAuthLink maps an external identity to a local user.
type OAuthLink struct {
	Provider   string    `json:"provider"`
	ProviderID string    `json:"providerId"`
	UserID     string    `json:"-"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository is implemented by the system of record. Methods that update a
// user return ErrNotFound when the user is absent.
type Repository interface {
	CreateUser(ctx context.Context, u NewUser) (Snapshot, error)
	SnapshotByEmail(ctx context.Context, email string) (Snapshot, error)
	SnapshotByID(ctx context.Context, id string) (Snapshot, error)
	ProfileByID(ctx context.Context, id string) (Profile, error)

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateEmail(ctx context.Context, id, email string) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) error

	// ActionToken returns the stored token of typ, or nil when none is set.
	ActionToken(ctx context.Context, id string, typ actiontoken.Type) (*ActionToken, error)
	SaveActionToken(ctx context.Context, id string, tok ActionToken) error
	// ConsumeActionToken atomically clears the token of typ whose value
	// matches and whose expiry is not before now, returning the owner id.
	ConsumeActionToken(ctx context.Context, typ actiontoken.Type, value string, now time.Time) (string, error)

	MFASecret(ctx context.Context, userID string) (*MFASecret, error)
	EnableMFA(ctx context.Context, secret MFASecret) error
	DisableMFA(ctx context.Context, userID string) error
	// ConsumeBackupCode atomically moves hash from available to used.
	// It returns false when hash is not available.
	ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error)

	OAuthLink(ctx context.Context, provider, providerID string) (*OAuthLink, error)
	OAuthLinks(ctx context.Context, userID string) ([]OAuthLink, error)
	CreateOAuthLink(ctx context.Context, link OAuthLink) error
	DeleteOAuthLink(ctx context.Context, userID, provider, providerID string) error
}
