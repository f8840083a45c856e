package storeauth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
)

// OAuthRedirect returns the provider authorization URL for a new round trip.
// The state parameter is single use and remembers intent for the callback.
func (e *Engine) OAuthRedirect(ctx context.Context, provider string, intent OAuthIntent) (string, error) {
	p, ok := e.providers[provider]
	if !ok {
		return "", ErrOAuthProviderUnknown
	}

	intent.Redirect = safeRedirect(intent.Redirect)
	state, err := newChallengeID()
	if err != nil {
		return "", withCause(ErrInternal, err)
	}
	if err := e.states.Save(ctx, state, oauthState{Provider: provider, Intent: intent}, e.config.OAuth.StateTTL); err != nil {
		return "", withCause(ErrBackendUnavailable, err)
	}
	return p.AuthCodeURL(state), nil
}

// ConnectOAuth starts a round trip that links provider to userID.
func (e *Engine) ConnectOAuth(ctx context.Context, userID, provider, redirect string) (string, error) {
	if userID == "" {
		return "", ErrUnauthorized
	}
	return e.OAuthRedirect(ctx, provider, OAuthIntent{Redirect: redirect, ConnectUserID: userID})
}

// OAuthCallback completes an authorization round trip. Depending on the
// linked state of the provider identity it signs the user in, asks for a
// second factor, links the provider, or reports that a local account
// already owns the email.
func (e *Engine) OAuthCallback(ctx context.Context, provider, code, state string) (res *OAuthResult, err error) {
	defer e.observe("oauth_callback", time.Now(), &err)

	p, ok := e.providers[provider]
	if !ok {
		return nil, ErrOAuthProviderUnknown
	}

	st, err := e.states.Take(ctx, state)
	if err != nil {
		if errors.Is(err, errOAuthStateNotFound) {
			return nil, ErrOAuthStateInvalid
		}
		return nil, withCause(ErrBackendUnavailable, err)
	}
	if st.Provider != provider {
		return nil, ErrOAuthStateInvalid
	}
	if code == "" {
		return nil, ErrOAuthFailed
	}

	ident, err := p.Exchange(ctx, code)
	if err != nil || ident.ProviderID == "" {
		if err == nil {
			err = errors.New("provider returned no subject")
		}
		e.metrics.Inc(MetricOAuthFailure)
		e.log.Warn("oauth exchange failed", zap.String("provider", provider), zap.Error(err))
		e.emitAudit(ctx, auditEventOAuthFailure, false, st.Intent.ConnectUserID, "", ErrOAuthFailed, func() map[string]string {
			return map[string]string{"provider": provider}
		})
		return nil, withCause(ErrOAuthFailed, err)
	}
	ident.Provider = provider

	res = &OAuthResult{Provider: provider, Redirect: st.Intent.Redirect}

	if st.Intent.ConnectUserID != "" {
		if err := e.connectOAuth(ctx, st.Intent.ConnectUserID, ident); err != nil {
			return nil, err
		}
		res.Outcome = OAuthConnected
		return res, nil
	}

	userID, unlinkedEmail, err := e.resolveOAuthUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	if unlinkedEmail != "" {
		res.Outcome = OAuthUnlinkedAccountExists
		res.Email = unlinkedEmail
		return res, nil
	}

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return nil, e.storeError(err)
	}
	if err := statusError(snap.Status); err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, userID, "", err, nil)
		return nil, err
	}

	if snap.MFAEnabled {
		challenge, err := newChallengeID()
		if err != nil {
			return nil, withCause(ErrInternal, err)
		}
		rec := &mfaLoginChallenge{
			UserID:    userID,
			Provider:  provider,
			ExpiresAt: e.now().Add(e.config.MFA.ChallengeTTL).Unix(),
		}
		if err := e.challenges.Save(ctx, challenge, rec, e.config.MFA.ChallengeTTL); err != nil {
			return nil, withCause(ErrBackendUnavailable, err)
		}
		e.metrics.Inc(MetricMFARequired)
		res.Outcome = OAuthMFARequired
		res.Challenge = challenge
		return res, nil
	}

	signIn, err := e.establishSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricOAuthSignIn)
	e.emitAudit(ctx, auditEventOAuthSignIn, true, userID, signIn.Session.ID, nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})
	res.Outcome = OAuthSignedIn
	res.SignIn = signIn
	return res, nil
}

// resolveOAuthUser maps a provider identity to a local user, creating one
// when neither the link nor the email exist. A non-empty email result means
// an unlinked local account owns the address.
func (e *Engine) resolveOAuthUser(ctx context.Context, ident OAuthIdentity) (userID, unlinkedEmail string, err error) {
	link, err := e.accounts.OAuthLink(ctx, ident.Provider, ident.ProviderID)
	switch {
	case err == nil:
		return link.UserID, "", nil
	case !errors.Is(err, account.ErrNotFound):
		return "", "", e.storeError(err)
	}

	email := normalizeEmail(ident.Email)
	if validateEmail(email) != nil {
		return "", "", withCause(ErrOAuthFailed, errors.New("provider returned no usable email"))
	}

	if existing, err := e.accounts.SnapshotByEmail(ctx, email); err == nil {
		orphan, err := e.orphanedOAuthAccount(ctx, existing, ident)
		if err != nil {
			return "", "", err
		}
		if !orphan {
			return "", email, nil
		}
		if err := e.linkOAuthIdentity(ctx, existing.ID, email, ident); err != nil {
			return "", "", err
		}
		e.log.Info("oauth link restored for account without sign-in method", zap.String("user_id", existing.ID))
		return existing.ID, "", nil
	} else if !errors.Is(err, account.ErrNotFound) {
		return "", "", e.storeError(err)
	}

	snap, err := e.accounts.CreateUser(ctx, account.NewUser{
		ID:            uuid.NewString(),
		Email:         email,
		Username:      oauthUsername(ident),
		Picture:       ident.Picture,
		EmailVerified: ident.EmailVerified,
		Role:          account.RoleCustomer,
	})
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return "", email, nil
		}
		return "", "", e.storeError(err)
	}

	// A failure here leaves an account with no sign-in method. The next
	// callback for the same verified email adopts it.
	if err := e.linkOAuthIdentity(ctx, snap.ID, email, ident); err != nil {
		return "", "", err
	}

	e.metrics.Inc(MetricSignUp)
	e.emitAudit(ctx, auditEventSignUp, true, snap.ID, "", nil, func() map[string]string {
		return map[string]string{"provider": ident.Provider}
	})
	return snap.ID, "", nil
}

func (e *Engine) linkOAuthIdentity(ctx context.Context, userID, email string, ident OAuthIdentity) error {
	if err := e.accounts.CreateOAuthLink(ctx, account.OAuthLink{
		Provider:   ident.Provider,
		ProviderID: ident.ProviderID,
		UserID:     userID,
		Email:      email,
		CreatedAt:  e.now().UTC(),
	}); err != nil {
		return e.storeError(err)
	}
	return nil
}

// orphanedOAuthAccount reports whether snap has neither a password nor any
// provider link, and ident proves ownership of its email.
func (e *Engine) orphanedOAuthAccount(ctx context.Context, snap account.Snapshot, ident OAuthIdentity) (bool, error) {
	if snap.HasPassword || !ident.EmailVerified {
		return false, nil
	}
	links, err := e.accounts.OAuthLinks(ctx, snap.ID)
	if err != nil {
		return false, e.storeError(err)
	}
	return len(links) == 0, nil
}

func (e *Engine) connectOAuth(ctx context.Context, userID string, ident OAuthIdentity) error {
	link, err := e.accounts.OAuthLink(ctx, ident.Provider, ident.ProviderID)
	switch {
	case err == nil && link.UserID == userID:
		return nil
	case err == nil:
		e.emitAudit(ctx, auditEventOAuthLinked, false, userID, "", ErrOAuthLinkedElsewhere, nil)
		return ErrOAuthLinkedElsewhere
	case !errors.Is(err, account.ErrNotFound):
		return e.storeError(err)
	}

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	if err := statusError(snap.Status); err != nil {
		return err
	}

	if err := e.accounts.CreateOAuthLink(ctx, account.OAuthLink{
		Provider:   ident.Provider,
		ProviderID: ident.ProviderID,
		UserID:     userID,
		Email:      normalizeEmail(ident.Email),
		CreatedAt:  e.now().UTC(),
	}); err != nil {
		return e.storeError(err)
	}

	e.metrics.Inc(MetricOAuthLinked)
	e.emitAudit(ctx, auditEventOAuthLinked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"provider": ident.Provider}
	})
	return nil
}

// CompleteOAuthMFA finishes an OAuth sign-in that returned OAuthMFARequired.
func (e *Engine) CompleteOAuthMFA(ctx context.Context, challenge, code string) (res *SignInResult, err error) {
	defer e.observe("oauth_mfa", time.Now(), &err)

	rec, err := e.challenges.Get(ctx, challenge, e.now())
	if err != nil {
		if errors.Is(err, errMFALoginChallengeNotFound) {
			return nil, ErrMFAChallengeExpired
		}
		return nil, withCause(ErrBackendUnavailable, err)
	}

	snap, err := e.accounts.SnapshotByID(ctx, rec.UserID)
	if err != nil {
		return nil, e.storeError(err)
	}
	if err := statusError(snap.Status); err != nil {
		_, _ = e.challenges.Consume(ctx, challenge)
		return nil, err
	}

	if snap.MFAEnabled {
		if strings.TrimSpace(code) == "" {
			return nil, ErrMFARequired
		}
		if err := e.verifyMFACode(ctx, rec.UserID, code); err != nil {
			if errors.Is(err, ErrMFAInvalid) || errors.Is(err, ErrBackupCodeUsed) {
				if ferr := e.challenges.RecordFailure(ctx, challenge, rec); ferr != nil && !errors.Is(ferr, errMFALoginChallengeExceeded) {
					e.log.Debug("record challenge failure", zap.Error(ferr))
				}
			}
			return nil, err
		}
	}

	consumed, err := e.challenges.Consume(ctx, challenge)
	if err != nil {
		return nil, withCause(ErrBackendUnavailable, err)
	}
	if !consumed {
		return nil, ErrMFAChallengeExpired
	}

	res, err = e.establishSession(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricOAuthSignIn)
	e.emitAudit(ctx, auditEventOAuthSignIn, true, rec.UserID, res.Session.ID, nil, func() map[string]string {
		return map[string]string{"provider": rec.Provider, "mfa": "true"}
	})
	return res, nil
}

// DisconnectOAuth removes one provider link. A user must keep at least one
// sign-in method, counting the password and each (provider, providerID) link.
func (e *Engine) DisconnectOAuth(ctx context.Context, userID, provider, providerID string) error {
	links, err := e.accounts.OAuthLinks(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	found := false
	for _, l := range links {
		if l.Provider == provider && (providerID == "" || l.ProviderID == providerID) {
			found = true
			providerID = l.ProviderID
			break
		}
	}
	if !found {
		return ErrOAuthLinkNotFound
	}

	snap, err := e.accounts.SnapshotByID(ctx, userID)
	if err != nil {
		return e.storeError(err)
	}
	methods := len(links)
	if snap.HasPassword {
		methods++
	}
	if methods <= 1 {
		return ErrLastSignInMethod
	}

	if err := e.accounts.DeleteOAuthLink(ctx, userID, provider, providerID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrOAuthLinkNotFound
		}
		return e.storeError(err)
	}

	e.emitAudit(ctx, auditEventOAuthUnlinked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})
	return nil
}

// safeRedirect keeps only client-relative paths.
func safeRedirect(r string) string {
	if !strings.HasPrefix(r, "/") || strings.HasPrefix(r, "//") || strings.Contains(r, "\\") {
		return ""
	}
	return r
}

func oauthUsername(ident OAuthIdentity) string {
	name := strings.TrimSpace(ident.Name)
	if name == "" {
		name, _, _ = strings.Cut(ident.Email, "@")
	}
	for utf8.RuneCountInString(name) > maxUsernameLength {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
