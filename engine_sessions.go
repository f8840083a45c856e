package storeauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/session"
)

// SignOut deletes the session behind cookie. It never fails for a missing,
// expired or undecryptable cookie.
func (e *Engine) SignOut(ctx context.Context, cookie string) error {
	if cookie == "" {
		return nil
	}
	id, err := e.cipher.DecryptString(cookie)
	if err != nil {
		return nil
	}
	userID, _ := session.UserIDFromID(id)
	if err := e.sessions.Delete(ctx, id); err != nil {
		e.log.Warn("sign out delete failed", zap.Error(err))
		return nil
	}
	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSignOut, true, userID, id, nil, nil)
	return nil
}

// SignOutAll deletes every session of userID on every device.
func (e *Engine) SignOutAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if err := e.revokeSessions(ctx, userID, ""); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventSignOutAll, true, userID, "", nil, nil)
	return nil
}

// ListSessions returns the live sessions of userID, newest first. Raw
// session ids never leave the engine; each entry carries an opaque handle.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	recs, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, withCause(ErrBackendUnavailable, err)
	}

	now := e.now()
	out := make([]SessionInfo, 0, len(recs))
	for _, rec := range recs {
		if rec.Expired(now) {
			continue
		}
		out = append(out, SessionInfo{
			Handle:    sessionHandle(rec.SessionID),
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
			CreatedAt: time.Unix(rec.CreatedAt, 0).UTC(),
			ExpiresAt: time.Unix(rec.ExpiresAt, 0).UTC(),
			Current:   rec.SessionID == currentSessionID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RevokeSession deletes the session of userID identified by handle.
func (e *Engine) RevokeSession(ctx context.Context, userID, handle string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	recs, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return withCause(ErrBackendUnavailable, err)
	}
	for _, rec := range recs {
		if sessionHandle(rec.SessionID) != handle {
			continue
		}
		if err := e.sessions.Delete(ctx, rec.SessionID); err != nil {
			return withCause(ErrBackendUnavailable, err)
		}
		e.metrics.Inc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, true, userID, rec.SessionID, nil, nil)
		return nil
	}
	return ErrSessionNotFound
}

func sessionHandle(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:12])
}

/*
====================================
IDENTITY
====================================
*/

// ResolveIdentity turns a session cookie into the caller identity. Every
// failure that means "no valid session" yields an anonymous identity, with
// ClearCookie set when the cookie is stale. Sessions of accounts that are not
// Active are deleted on sight. Only configuration faults are
// returned as errors.
func (e *Engine) ResolveIdentity(ctx context.Context, cookie string) (Identity, error) {
	if cookie == "" {
		return Identity{}, nil
	}

	id, err := e.cipher.DecryptString(cookie)
	if err != nil {
		if KindOf(err) == KindConfiguration {
			return Identity{}, withCause(ErrInvalidConfig, err)
		}
		return e.clearedIdentity(), nil
	}

	rec, err := e.sessions.Get(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return e.clearedIdentity(), nil
	case err != nil:
		e.log.Warn("session lookup failed", zap.Error(err))
		return Identity{}, nil
	}

	if rec.Expired(e.now()) {
		_ = e.sessions.Delete(ctx, id)
		return e.clearedIdentity(), nil
	}

	profile, err := e.accounts.ProfileByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			_ = e.sessions.Delete(ctx, id)
			return e.clearedIdentity(), nil
		}
		e.log.Warn("identity profile lookup failed", zap.String("user_id", rec.UserID), zap.Error(err))
		return Identity{}, nil
	}

	// a session that outlived a status change is revoked here
	if profile.Status != account.Active {
		_ = e.sessions.Delete(ctx, id)
		e.log.Info("session of inactive account revoked",
			zap.String("user_id", rec.UserID),
			zap.String("status", profile.Status.String()),
		)
		return e.clearedIdentity(), nil
	}

	return Identity{Profile: profile, SessionID: id, authenticated: true}, nil
}

func (e *Engine) clearedIdentity() Identity {
	e.metrics.Inc(MetricIdentityCleared)
	return Identity{ClearCookie: true}
}
