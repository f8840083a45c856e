package storeauth

import (
	"context"
	"testing"
)

// oauthEnrolledUser creates an OAuth user with MFA enabled and returns its
// id and TOTP secret.
func oauthEnrolledUser(t *testing.T, env *testEnv, code, sub, email string) (string, string) {
	t.Helper()
	env.google.register(code, googleIdentity(sub, email))
	res, err := env.engine.OAuthCallback(context.Background(), "google", code, startOAuth(t, env, OAuthIntent{}))
	if err != nil {
		t.Fatalf("OAuthCallback: %v", err)
	}
	id := res.SignIn.Profile.ID
	secret, _ := env.enrollMFA(t, id)
	return id, secret
}

func TestOAuthDoesNotBypassMFA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, secret := oauthEnrolledUser(t, env, "mfa-code", "g-mfa", "mfa-oauth@example.com")

	res, err := env.engine.OAuthCallback(ctx, "google", "mfa-code", startOAuth(t, env, OAuthIntent{}))
	if err != nil {
		t.Fatalf("OAuthCallback: %v", err)
	}
	if res.Outcome != OAuthMFARequired || res.Challenge == "" || res.SignIn != nil {
		t.Fatalf("expected MFA challenge, got %+v", res)
	}

	_, err = env.engine.CompleteOAuthMFA(ctx, res.Challenge, "")
	requireKind(t, err, ErrMFARequired)

	signIn, err := env.engine.CompleteOAuthMFA(ctx, res.Challenge, env.code(t, secret))
	if err != nil {
		t.Fatalf("CompleteOAuthMFA: %v", err)
	}
	if signIn.Profile.ID != id || signIn.Session.Cookie == "" {
		t.Fatalf("unexpected sign-in %+v", signIn)
	}

	_, err = env.engine.CompleteOAuthMFA(ctx, res.Challenge, env.code(t, secret))
	requireKind(t, err, ErrMFAChallengeExpired)
}

func TestOAuthMFAChallengeExhaustsAfterFailures(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.RateLimit.MFAFailures = RateRule{}
	}))
	ctx := context.Background()
	_, secret := oauthEnrolledUser(t, env, "mfa-x", "g-x", "exhaust@example.com")

	res, err := env.engine.OAuthCallback(ctx, "google", "mfa-x", startOAuth(t, env, OAuthIntent{}))
	if err != nil {
		t.Fatalf("OAuthCallback: %v", err)
	}

	for i := 0; i < mfaLoginMaxAttempts; i++ {
		_, err := env.engine.CompleteOAuthMFA(ctx, res.Challenge, "ZZZZZ-ZZZZZ")
		requireKind(t, err, ErrMFAInvalid)
	}
	_, err = env.engine.CompleteOAuthMFA(ctx, res.Challenge, env.code(t, secret))
	requireKind(t, err, ErrMFAChallengeExpired)
}

func TestOAuthMFAChallengeExpires(t *testing.T) {
	env := newRedisTestEnv(t)
	ctx := context.Background()
	_, secret := oauthEnrolledUser(t, env, "mfa-e", "g-e", "expire@example.com")

	res, err := env.engine.OAuthCallback(ctx, "google", "mfa-e", startOAuth(t, env, OAuthIntent{}))
	if err != nil {
		t.Fatalf("OAuthCallback: %v", err)
	}

	env.mr.FastForward(env.engine.config.MFA.ChallengeTTL + 1)
	_, err = env.engine.CompleteOAuthMFA(ctx, res.Challenge, env.code(t, secret))
	requireKind(t, err, ErrMFAChallengeExpired)
}
