// Package memory is an in-process account.Repository for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
	"github.com/google/uuid"
)

type user struct {
	id            string
	email         string
	username      string
	picture       string
	passwordHash  string
	emailVerified bool
	status        account.Status
	role          account.Role
	createdAt     time.Time
	tokens        map[actiontoken.Type]account.ActionToken
}

// Repository implements account.Repository with mutex-guarded maps.
type Repository struct {
	mu      sync.Mutex
	users   map[string]*user
	byEmail map[string]string
	secrets map[string]*account.MFASecret
	links   map[string]account.OAuthLink
	now     func() time.Time
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		users:   make(map[string]*user),
		byEmail: make(map[string]string),
		secrets: make(map[string]*account.MFASecret),
		links:   make(map[string]account.OAuthLink),
		now:     time.Now,
	}
}

var _ account.Repository = (*Repository)(nil)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func linkKey(provider, providerID string) string {
	return provider + "\x00" + providerID
}

func (r *Repository) snapshot(u *user) account.Snapshot {
	_, mfa := r.secrets[u.id]
	return account.Snapshot{
		ID:            u.id,
		Email:         u.email,
		EmailVerified: u.emailVerified,
		PasswordHash:  u.passwordHash,
		HasPassword:   u.passwordHash != "",
		Status:        u.status,
		MFAEnabled:    mfa,
		Role:          u.role,
	}
}

func (r *Repository) CreateUser(_ context.Context, in account.NewUser) (account.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := normalizeEmail(in.Email)
	if _, taken := r.byEmail[email]; taken {
		return account.Snapshot{}, account.ErrEmailTaken
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	role := in.Role
	if role == "" {
		role = account.RoleCustomer
	}

	u := &user{
		id:            id,
		email:         email,
		username:      in.Username,
		picture:       in.Picture,
		passwordHash:  in.PasswordHash,
		emailVerified: in.EmailVerified,
		status:        account.Active,
		role:          role,
		createdAt:     r.now(),
		tokens:        make(map[actiontoken.Type]account.ActionToken),
	}
	r.users[id] = u
	r.byEmail[email] = id
	return r.snapshot(u), nil
}

func (r *Repository) SnapshotByEmail(_ context.Context, email string) (account.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return account.Snapshot{}, account.ErrNotFound
	}
	return r.snapshot(r.users[id]), nil
}

func (r *Repository) SnapshotByID(_ context.Context, id string) (account.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return account.Snapshot{}, account.ErrNotFound
	}
	return r.snapshot(u), nil
}

func (r *Repository) ProfileByID(_ context.Context, id string) (account.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return account.Profile{}, account.ErrNotFound
	}
	_, mfa := r.secrets[id]
	return account.Profile{
		ID:            u.id,
		Email:         u.email,
		EmailVerified: u.emailVerified,
		Username:      u.username,
		Picture:       u.picture,
		Role:          u.role,
		Status:        u.status,
		HasPassword:   u.passwordHash != "",
		MFAEnabled:    mfa,
		Providers:     r.linksLocked(id),
		CreatedAt:     u.createdAt,
	}, nil
}

func (r *Repository) update(id string, fn func(*user) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return account.ErrNotFound
	}
	return fn(u)
}

func (r *Repository) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(u *user) error {
		u.passwordHash = hash
		return nil
	})
}

func (r *Repository) UpdateStatus(_ context.Context, id string, status account.Status) error {
	return r.update(id, func(u *user) error {
		u.status = status
		return nil
	})
}

func (r *Repository) UpdateEmail(_ context.Context, id, email string) error {
	email = normalizeEmail(email)
	return r.update(id, func(u *user) error {
		if owner, taken := r.byEmail[email]; taken && owner != id {
			return account.ErrEmailTaken
		}
		delete(r.byEmail, u.email)
		u.email = email
		u.emailVerified = false
		delete(u.tokens, actiontoken.EmailVerification)
		r.byEmail[email] = id
		return nil
	})
}

func (r *Repository) UpdateProfile(_ context.Context, id string, upd account.ProfileUpdate) error {
	return r.update(id, func(u *user) error {
		if upd.Username != nil {
			u.username = *upd.Username
		}
		if upd.Picture != nil {
			u.picture = *upd.Picture
		}
		return nil
	})
}

func (r *Repository) MarkEmailVerified(_ context.Context, id string) error {
	return r.update(id, func(u *user) error {
		u.emailVerified = true
		return nil
	})
}

func (r *Repository) ActionToken(_ context.Context, id string, typ actiontoken.Type) (*account.ActionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	tok, ok := u.tokens[typ]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (r *Repository) SaveActionToken(_ context.Context, id string, tok account.ActionToken) error {
	return r.update(id, func(u *user) error {
		u.tokens[tok.Type] = tok
		return nil
	})
}

func (r *Repository) ConsumeActionToken(_ context.Context, typ actiontoken.Type, value string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.users {
		tok, ok := u.tokens[typ]
		if !ok || tok.Value != value {
			continue
		}
		if now.After(tok.ExpiresAt) {
			return "", account.ErrNotFound
		}
		delete(u.tokens, typ)
		return id, nil
	}
	return "", account.ErrNotFound
}

func (r *Repository) MFASecret(_ context.Context, userID string) (*account.MFASecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.secrets[userID]
	if !ok {
		return nil, account.ErrNotFound
	}
	out := *s
	out.AvailableCodes = append([]string(nil), s.AvailableCodes...)
	out.UsedCodes = append([]string(nil), s.UsedCodes...)
	return &out, nil
}

func (r *Repository) EnableMFA(_ context.Context, secret account.MFASecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[secret.UserID]; !ok {
		return account.ErrNotFound
	}
	s := secret
	s.AvailableCodes = append([]string(nil), secret.AvailableCodes...)
	s.UsedCodes = nil
	if s.EnabledAt.IsZero() {
		s.EnabledAt = r.now()
	}
	r.secrets[secret.UserID] = &s
	return nil
}

func (r *Repository) DisableMFA(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return account.ErrNotFound
	}
	delete(r.secrets, userID)
	return nil
}

func (r *Repository) ConsumeBackupCode(_ context.Context, userID, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.secrets[userID]
	if !ok {
		return false, account.ErrNotFound
	}
	for i, h := range s.AvailableCodes {
		if h == hash {
			s.AvailableCodes = append(s.AvailableCodes[:i:i], s.AvailableCodes[i+1:]...)
			s.UsedCodes = append(s.UsedCodes, hash)
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) OAuthLink(_ context.Context, provider, providerID string) (*account.OAuthLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[linkKey(provider, providerID)]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &l, nil
}

func (r *Repository) OAuthLinks(_ context.Context, userID string) ([]account.OAuthLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linksLocked(userID), nil
}

func (r *Repository) linksLocked(userID string) []account.OAuthLink {
	out := []account.OAuthLink{}
	for _, l := range r.links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out
}

func (r *Repository) CreateOAuthLink(_ context.Context, link account.OAuthLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[link.UserID]; !ok {
		return account.ErrNotFound
	}
	k := linkKey(link.Provider, link.ProviderID)
	if _, ok := r.links[k]; ok {
		return account.ErrLinkExists
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = r.now()
	}
	r.links[k] = link
	return nil
}

func (r *Repository) DeleteOAuthLink(_ context.Context, userID, provider, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := linkKey(provider, providerID)
	l, ok := r.links[k]
	if !ok || l.UserID != userID {
		return account.ErrNotFound
	}
	delete(r.links, k)
	return nil
}
