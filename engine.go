package storeauth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
	"github.com/MrEthical07/storeauth/cache"
	"github.com/MrEthical07/storeauth/cookiecrypt"
	internalaudit "github.com/MrEthical07/storeauth/internal/audit"
	"github.com/MrEthical07/storeauth/internal/rate"
	"github.com/MrEthical07/storeauth/mfa"
	"github.com/MrEthical07/storeauth/password"
	"github.com/MrEthical07/storeauth/session"
)

// Engine orchestrates sign-up, sign-in, sessions, action tokens, MFA and
// account state. It is safe for concurrent use once built.
type Engine struct {
	config     Config
	accounts   account.Repository
	cache      cache.Client
	sessions   *session.Store
	pending    *mfa.PendingStore
	challenges *mfaLoginChallengeStore
	states     *oauthStateStore
	cipher     *cookiecrypt.Cipher
	tokens     *actiontoken.Issuer
	hasher     *password.Hasher
	totp       mfa.TOTP
	limiter    *rate.Limiter
	providers  map[string]OAuthProvider
	notifier   Notifier
	log        *zap.Logger
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	now        func() time.Time
}

// Close flushes queued audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// SessionCookieName is the cookie that carries the encrypted session id.
func (e *Engine) SessionCookieName() string { return e.config.Session.CookieName }

// SessionLifetime is the fixed lifetime of new sessions.
func (e *Engine) SessionLifetime() time.Duration { return e.config.Session.Lifetime }

// Production reports whether cookies must be Secure.
func (e *Engine) Production() bool { return e.config.Production() }

// ClientURL is the front-end base URL.
func (e *Engine) ClientURL() string { return e.config.ClientURL }

// Providers lists the configured OAuth provider names.
func (e *Engine) Providers() []string {
	out := make([]string, 0, len(e.providers))
	for name := range e.providers {
		out = append(out, name)
	}
	return out
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the cache and, when it supports it, the account store.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.cache.Ping(ctx); err != nil {
		return withCause(ErrBackendUnavailable, err)
	}
	if p, ok := e.accounts.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return withCause(ErrBackendUnavailable, err)
		}
	}
	return nil
}

// observe records operation latency; err points at the named result.
func (e *Engine) observe(op string, start time.Time, err *error) {
	e.metrics.Observe(op, start, *err)
}

/*
====================================
SESSIONS
====================================
*/

// establishSession creates a session for a user already cleared by status
// gating and returns the encrypted cookie value.
func (e *Engine) establishSession(ctx context.Context, userID string) (*SignInResult, error) {
	profile, err := e.accounts.ProfileByID(ctx, userID)
	if err != nil {
		return nil, e.storeError(err)
	}

	id, err := session.NewID(userID)
	if err != nil {
		return nil, withCause(ErrInternal, err)
	}

	now := e.now()
	expires := now.Add(e.config.Session.Lifetime)
	rec := &session.Record{
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		CreatedAt: now.Unix(),
		ExpiresAt: expires.Unix(),
	}
	if err := e.sessions.Create(ctx, id, rec, e.config.Session.Lifetime); err != nil {
		return nil, withCause(ErrBackendUnavailable, err)
	}

	cookie, err := e.cipher.EncryptString(id)
	if err != nil {
		_ = e.sessions.Delete(ctx, id)
		return nil, withCause(ErrInternal, err)
	}

	e.metrics.Inc(MetricSessionCreated)
	return &SignInResult{
		Session: Session{ID: id, Cookie: cookie, ExpiresAt: expires},
		Profile: profile,
	}, nil
}

// revokeSessions removes every session of userID except keep.
func (e *Engine) revokeSessions(ctx context.Context, userID, keep string) error {
	if keep == "" {
		n, err := e.sessions.DeleteForUser(ctx, userID)
		if err != nil {
			return withCause(ErrBackendUnavailable, err)
		}
		e.metrics.Add(MetricSessionRevoked, n)
		return nil
	}

	recs, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return withCause(ErrBackendUnavailable, err)
	}
	n := 0
	for _, rec := range recs {
		if rec.SessionID == keep {
			continue
		}
		if err := e.sessions.Delete(ctx, rec.SessionID); err != nil {
			return withCause(ErrBackendUnavailable, err)
		}
		n++
	}
	e.metrics.Add(MetricSessionRevoked, n)
	return nil
}

// statusError gates session issuance on the account state.
func statusError(s account.Status) error {
	switch s {
	case account.Active:
		return nil
	case account.Suspended:
		return ErrAccountClosed
	case account.Disabled:
		return ErrAccountLocked
	default:
		return ErrAccountLocked
	}
}

// storeError maps repository failures onto engine errors.
func (e *Engine) storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, account.ErrEmailTaken):
		return ErrUserExists
	case errors.Is(err, account.ErrLinkExists):
		return ErrOAuthLinkedElsewhere
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return withCause(ErrBackendUnavailable, err)
}

// limitError maps limiter failures. A limiter backend outage fails open
// and is logged.
func (e *Engine) limitError(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, op)
		return ErrRateLimited
	default:
		e.log.Warn("rate limiter unavailable", zap.String("op", op), zap.Error(err))
		return nil
	}
}

func (e *Engine) link(path, token string) string {
	return strings.TrimRight(e.config.ClientURL, "/") + path + "?token=" + url.QueryEscape(token)
}
