package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/cache"
)

// Rule is a budget of Max events per Window. A zero Max disables the rule.
type Rule struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

func (r Rule) enabled() bool { return r.Max > 0 && r.Window > 0 }

// Config holds the per-flow budgets.
type Config struct {
	SignIn       Rule `yaml:"sign_in"`
	SignInPerIP  Rule `yaml:"sign_in_per_ip"`
	Recovery     Rule `yaml:"recovery"`
	Verification Rule `yaml:"verification"`
	MFAFailures  Rule `yaml:"mfa_failures"`
}

// DefaultConfig returns conservative budgets.
func DefaultConfig() Config {
	return Config{
		SignIn:       Rule{Max: 5, Window: 15 * time.Minute},
		SignInPerIP:  Rule{Max: 50, Window: 15 * time.Minute},
		Recovery:     Rule{Max: 3, Window: time.Hour},
		Verification: Rule{Max: 3, Window: time.Hour},
		MFAFailures:  Rule{Max: 5, Window: 15 * time.Minute},
	}
}

// Limiter enforces Config against cache counters. A nil *Limiter allows
// everything.
type Limiter struct {
	cache  cache.Client
	config Config
}

// New returns a Limiter on c.
func New(c cache.Client, cfg Config) *Limiter {
	return &Limiter{cache: c, config: cfg}
}

// CheckSignIn fails when either the email or the IP budget is spent. It
// does not count the attempt; failures are recorded by RecordSignInFailure.
func (l *Limiter) CheckSignIn(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.check(ctx, signInKey(email), l.config.SignIn); err != nil {
		return err
	}
	if ip != "" {
		return l.check(ctx, signInIPKey(ip), l.config.SignInPerIP)
	}
	return nil
}

// RecordSignInFailure counts a failed sign-in against email and ip.
func (l *Limiter) RecordSignInFailure(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.hit(ctx, signInKey(email), l.config.SignIn); err != nil {
		return err
	}
	if ip != "" {
		return l.hit(ctx, signInIPKey(ip), l.config.SignInPerIP)
	}
	return nil
}

// ResetSignIn clears the per-email counter after a successful sign-in.
// The IP counter is left to expire.
func (l *Limiter) ResetSignIn(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return l.reset(ctx, signInKey(email))
}

// AllowRecovery counts one recovery or reactivation request for email.
func (l *Limiter) AllowRecovery(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return l.hit(ctx, recoveryKey(email), l.config.Recovery)
}

// AllowVerification counts one verification email resend for userID.
func (l *Limiter) AllowVerification(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return l.hit(ctx, "rl:ver:"+userID, l.config.Verification)
}

// CheckMFA fails when userID has exhausted its MFA failure budget.
func (l *Limiter) CheckMFA(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return l.check(ctx, mfaKey(userID), l.config.MFAFailures)
}

// RecordMFAFailure counts one rejected MFA code.
func (l *Limiter) RecordMFAFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return l.hit(ctx, mfaKey(userID), l.config.MFAFailures)
}

// ResetMFA clears the MFA failure counter.
func (l *Limiter) ResetMFA(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return l.reset(ctx, mfaKey(userID))
}

// SignInAttempts returns the failure count for email without revealing
// whether the account exists.
func (l *Limiter) SignInAttempts(ctx context.Context, email string) (int, error) {
	if l == nil {
		return 0, nil
	}
	n, err := l.cache.Count(ctx, signInKey(email))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (l *Limiter) check(ctx context.Context, key string, rule Rule) error {
	if !rule.enabled() {
		return nil
	}
	n, err := l.cache.Count(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n >= int64(rule.Max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string, rule Rule) error {
	if !rule.enabled() {
		return nil
	}
	n, err := l.cache.Incr(ctx, key, rule.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n > int64(rule.Max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) reset(ctx context.Context, key string) error {
	if err := l.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func signInKey(email string) string   { return "rl:si:" + normalize(email) }
func signInIPKey(ip string) string    { return "rl:sip:" + ip }
func recoveryKey(email string) string { return "rl:rec:" + normalize(email) }
func mfaKey(userID string) string     { return "rl:mfa:" + userID }

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
