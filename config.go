package storeauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/cookiecrypt"
	"github.com/MrEthical07/storeauth/password"
)

// Config is the engine configuration. It is copied by Build and treated as
// immutable afterwards.
type Config struct {
	// Env is "production" or "development". Production marks cookies Secure.
	Env string
	// ServerURL is the public base URL of this service.
	ServerURL string
	// ClientURL is the front-end base URL used for emailed links and
	// OAuth landing redirects.
	ClientURL string
	// CipherKey is the base64 encoding of a 32 byte AES key.
	CipherKey string
	// ActionTokenSecret signs action-token JWTs.
	ActionTokenSecret string

	Session      SessionConfig
	ActionTokens ActionTokenConfig
	MFA          MFAConfig
	OAuth        OAuthConfig
	Password     password.Config
	RateLimit    RateLimitConfig
	Audit        AuditConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session cookie. Sessions are not sliding.
type SessionConfig struct {
	Lifetime   time.Duration
	CookieName string
	// UpgradePasswordOnSignIn rehashes legacy or weaker hashes after a
	// successful password sign-in.
	UpgradePasswordOnSignIn bool
}

/*
====================================
ACTION TOKEN CONFIG
====================================
*/

// ActionTokenConfig holds the lifetime of each action-token type.
type ActionTokenConfig struct {
	EmailVerification time.Duration
	RecoverAccount    time.Duration
	ReActivate        time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls TOTP enrollment and OAuth MFA challenges.
type MFAConfig struct {
	Issuer string
	// PendingTTL bounds how long an unconfirmed setup is kept.
	PendingTTL time.Duration
	// ChallengeTTL bounds the second step of an OAuth sign-in.
	ChallengeTTL time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig controls the authorization round trip.
type OAuthConfig struct {
	StateTTL time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateRule allows Max events per Window. A zero Max disables the rule.
type RateRule struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig holds the per-flow budgets.
type RateLimitConfig struct {
	SignIn       RateRule
	SignInPerIP  RateRule
	Recovery     RateRule
	Verification RateRule
	MFAFailures  RateRule
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	minActionTokenSecret = 16
)

// DefaultConfig returns a development configuration without keys.
func DefaultConfig() Config {
	return Config{
		Env:       EnvDevelopment,
		ServerURL: "http://localhost:8080",
		ClientURL: "http://localhost:3000",
		Session: SessionConfig{
			Lifetime:                30 * 24 * time.Hour,
			CookieName:              "sid",
			UpgradePasswordOnSignIn: true,
		},
		ActionTokens: ActionTokenConfig{
			EmailVerification: 24 * time.Hour,
			RecoverAccount:    4 * time.Hour,
			ReActivate:        5 * time.Minute,
		},
		MFA: MFAConfig{
			Issuer:       "storeauth",
			PendingTTL:   time.Hour,
			ChallengeTTL: 5 * time.Minute,
		},
		OAuth: OAuthConfig{
			StateTTL: 10 * time.Minute,
		},
		Password: password.DefaultConfig(),
		RateLimit: RateLimitConfig{
			SignIn:       RateRule{Max: 5, Window: 15 * time.Minute},
			SignInPerIP:  RateRule{Max: 50, Window: 15 * time.Minute},
			Recovery:     RateRule{Max: 3, Window: time.Hour},
			Verification: RateRule{Max: 3, Window: time.Hour},
			MFAFailures:  RateRule{Max: 5, Window: 15 * time.Minute},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// Production reports whether c describes a production deployment.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// Validate checks c. Failures are *Error values of KindConfiguration; a bad
// cipher key also wraps cookiecrypt.ErrInvalidKey.
func (c *Config) Validate() error {
	if _, err := cookiecrypt.New(c.CipherKey); err != nil {
		return withCause(ErrInvalidConfig, fmt.Errorf("CipherKey: %w", err))
	}
	if len(c.ActionTokenSecret) < minActionTokenSecret {
		return configError("ActionTokenSecret must be at least 16 bytes")
	}

	if c.Env != EnvDevelopment && !c.Production() {
		return configError("Env must be 'development' or 'production'")
	}
	if err := validateBaseURL(c.ClientURL); err != nil {
		return configError("ClientURL " + err.Error())
	}
	if c.ServerURL != "" {
		if err := validateBaseURL(c.ServerURL); err != nil {
			return configError("ServerURL " + err.Error())
		}
	}
	if c.Production() && !strings.HasPrefix(c.ClientURL, "https://") {
		return configError("ClientURL must use https in production")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return configError("Session Lifetime must be > 0")
	}
	if c.Session.CookieName == "" {
		return configError("Session CookieName must be set")
	}

	// Action tokens
	if c.ActionTokens.EmailVerification <= 0 || c.ActionTokens.RecoverAccount <= 0 || c.ActionTokens.ReActivate <= 0 {
		return configError("ActionTokens lifetimes must be > 0")
	}

	// MFA
	if c.MFA.Issuer == "" {
		return configError("MFA Issuer must be set")
	}
	if c.MFA.PendingTTL <= 0 || c.MFA.ChallengeTTL <= 0 {
		return configError("MFA PendingTTL and ChallengeTTL must be > 0")
	}

	if c.OAuth.StateTTL <= 0 {
		return configError("OAuth StateTTL must be > 0")
	}

	if _, err := password.NewHasher(c.Password); err != nil {
		return withCause(ErrInvalidConfig, err)
	}

	for name, r := range map[string]RateRule{
		"SignIn":       c.RateLimit.SignIn,
		"SignInPerIP":  c.RateLimit.SignInPerIP,
		"Recovery":     c.RateLimit.Recovery,
		"Verification": c.RateLimit.Verification,
		"MFAFailures":  c.RateLimit.MFAFailures,
	} {
		if r.Max < 0 || (r.Max > 0 && r.Window <= 0) {
			return configError("RateLimit " + name + " needs a positive Window when Max > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit BufferSize must be > 0")
	}

	return nil
}

func configError(msg string) error {
	return withCause(ErrInvalidConfig, errors.New(msg))
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	return nil
}
