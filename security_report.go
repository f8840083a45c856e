package storeauth

import "time"

// SecurityReport summarizes the security posture of a built engine. It is
// logged at startup and exposed to operators; it never carries secrets.
type SecurityReport struct {
	ProductionMode    bool                 `json:"productionMode"`
	SecureCookies     bool                 `json:"secureCookies"`
	SessionLifetime   time.Duration        `json:"sessionLifetime"`
	ActionTokenTTLs   map[string]string    `json:"actionTokenTtls"`
	Argon2            PasswordConfigReport `json:"argon2"`
	LegacyHashUpgrade bool                 `json:"legacyHashUpgrade"`
	OAuthProviders    []string             `json:"oauthProviders"`
	OAuthRequiresMFA  bool                 `json:"oauthRequiresMfa"`
	RateLimits        map[string]bool      `json:"rateLimits"`
	AuditEnabled      bool                 `json:"auditEnabled"`
	MetricsEnabled    bool                 `json:"metricsEnabled"`
}

// PasswordConfigReport mirrors the argon2id cost parameters.
type PasswordConfigReport struct {
	Memory      uint32 `json:"memory"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"saltLength"`
	KeyLength   uint32 `json:"keyLength"`
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	rl := e.config.RateLimit
	return SecurityReport{
		ProductionMode:  e.config.Production(),
		SecureCookies:   e.config.Production(),
		SessionLifetime: e.config.Session.Lifetime,
		ActionTokenTTLs: map[string]string{
			"emailVerification": e.config.ActionTokens.EmailVerification.String(),
			"recoverAccount":    e.config.ActionTokens.RecoverAccount.String(),
			"reActivate":        e.config.ActionTokens.ReActivate.String(),
		},
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LegacyHashUpgrade: e.config.Session.UpgradePasswordOnSignIn,
		OAuthProviders:    e.Providers(),
		OAuthRequiresMFA:  true,
		RateLimits: map[string]bool{
			"signIn":       rl.SignIn.Max > 0,
			"signInPerIP":  rl.SignInPerIP.Max > 0,
			"recovery":     rl.Recovery.Max > 0,
			"verification": rl.Verification.Max > 0,
			"mfaFailures":  rl.MFAFailures.Max > 0,
		},
		AuditEnabled:   e.config.Audit.Enabled,
		MetricsEnabled: e.metrics != nil,
	}
}
