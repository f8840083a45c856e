// Package postgres implements account.Repository on PostgreSQL through a
// pgx connection pool. Schema changes ship as embedded goose migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type tokenColumns struct {
	value   string
	expires string
}

var actionTokenColumns = map[actiontoken.Type]tokenColumns{
	actiontoken.EmailVerification: {"email_verification_token", "email_verification_expires"},
	actiontoken.RecoverAccount:    {"recover_account_token", "recover_account_expires"},
	actiontoken.ReActivate:        {"reactivate_token", "reactivate_expires"},
}

func columnsFor(typ actiontoken.Type) (tokenColumns, error) {
	cols, ok := actionTokenColumns[typ]
	if !ok {
		return tokenColumns{}, fmt.Errorf("unknown action token type %q", typ)
	}
	return cols, nil
}

// Store implements account.Repository.
type Store struct {
	pool *pgxpool.Pool
}

var _ account.Repository = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgxpool ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func parseUUID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, account.ErrNotFound
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return account.ErrNotFound
	}
	return err
}

const snapshotColumns = `
	u.id::text, u.email, u.email_verified, COALESCE(u.password_hash, ''), u.status, u.role,
	EXISTS (SELECT 1 FROM mfa_secrets m WHERE m.user_id = u.id)`

func scanSnapshot(row pgx.Row) (account.Snapshot, error) {
	var (
		snap   account.Snapshot
		status string
		role   string
	)
	if err := row.Scan(&snap.ID, &snap.Email, &snap.EmailVerified, &snap.PasswordHash, &status, &role, &snap.MFAEnabled); err != nil {
		return account.Snapshot{}, notFound(err)
	}
	st, err := account.ParseStatus(status)
	if err != nil {
		return account.Snapshot{}, err
	}
	snap.Status = st
	snap.Role = account.Role(role)
	snap.HasPassword = snap.PasswordHash != ""
	return snap, nil
}

func (s *Store) CreateUser(ctx context.Context, in account.NewUser) (account.Snapshot, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	uid, err := parseUUID(id)
	if err != nil {
		return account.Snapshot{}, fmt.Errorf("invalid user id %q", id)
	}
	role := in.Role
	if role == "" {
		role = account.RoleCustomer
	}

	var hash any
	if in.PasswordHash != "" {
		hash = in.PasswordHash
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, picture, password_hash, email_verified, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uid, normalizeEmail(in.Email), in.Username, in.Picture, hash, in.EmailVerified, string(role))
	if err != nil {
		if isUniqueViolation(err) {
			return account.Snapshot{}, account.ErrEmailTaken
		}
		return account.Snapshot{}, err
	}
	return s.SnapshotByID(ctx, uid.String())
}

func (s *Store) SnapshotByEmail(ctx context.Context, email string) (account.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM users u WHERE u.email = $1`, normalizeEmail(email))
	return scanSnapshot(row)
}

func (s *Store) SnapshotByID(ctx context.Context, id string) (account.Snapshot, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return account.Snapshot{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM users u WHERE u.id = $1`, uid)
	return scanSnapshot(row)
}

func (s *Store) ProfileByID(ctx context.Context, id string) (account.Profile, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return account.Profile{}, err
	}

	var (
		p      account.Profile
		status string
		role   string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT u.id::text, u.email, u.email_verified, u.username, u.picture, u.role, u.status,
		       u.password_hash IS NOT NULL,
		       EXISTS (SELECT 1 FROM mfa_secrets m WHERE m.user_id = u.id),
		       u.created_at
		FROM users u WHERE u.id = $1
	`, uid).Scan(&p.ID, &p.Email, &p.EmailVerified, &p.Username, &p.Picture, &role, &status, &p.HasPassword, &p.MFAEnabled, &p.CreatedAt)
	if err != nil {
		return account.Profile{}, notFound(err)
	}
	if p.Status, err = account.ParseStatus(status); err != nil {
		return account.Profile{}, err
	}
	p.Role = account.Role(role)

	p.Providers, err = s.OAuthLinks(ctx, id)
	if err != nil {
		return account.Profile{}, err
	}
	return p, nil
}

func (s *Store) execUser(ctx context.Context, id, query string, args ...any) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, append([]any{uid}, args...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrEmailTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execUser(ctx, id, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, hash)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status account.Status) error {
	return s.execUser(ctx, id, `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`, status.String())
}

func (s *Store) UpdateEmail(ctx context.Context, id, email string) error {
	return s.execUser(ctx, id, `
		UPDATE users SET email = $2, email_verified = FALSE,
		       email_verification_token = NULL, email_verification_expires = NULL,
		       updated_at = now()
		WHERE id = $1
	`, normalizeEmail(email))
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	return s.execUser(ctx, id, `UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`)
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd account.ProfileUpdate) error {
	return s.execUser(ctx, id, `
		UPDATE users SET username = COALESCE($2, username), picture = COALESCE($3, picture),
		       updated_at = now()
		WHERE id = $1
	`, upd.Username, upd.Picture)
}

func (s *Store) ActionToken(ctx context.Context, id string, typ actiontoken.Type) (*account.ActionToken, error) {
	cols, err := columnsFor(typ)
	if err != nil {
		return nil, err
	}
	uid, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	var (
		value   *string
		expires *time.Time
	)
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s, %s FROM users WHERE id = $1`, cols.value, cols.expires), uid,
	).Scan(&value, &expires)
	if err != nil {
		return nil, notFound(err)
	}
	if value == nil || expires == nil {
		return nil, nil
	}
	return &account.ActionToken{Type: typ, Value: *value, ExpiresAt: *expires}, nil
}

func (s *Store) SaveActionToken(ctx context.Context, id string, tok account.ActionToken) error {
	cols, err := columnsFor(tok.Type)
	if err != nil {
		return err
	}
	return s.execUser(ctx, id,
		fmt.Sprintf(`UPDATE users SET %s = $2, %s = $3, updated_at = now() WHERE id = $1`, cols.value, cols.expires),
		tok.Value, tok.ExpiresAt)
}

// ConsumeActionToken clears the token with a single conditional UPDATE so
// two concurrent consumers cannot both succeed.
func (s *Store) ConsumeActionToken(ctx context.Context, typ actiontoken.Type, value string, now time.Time) (string, error) {
	cols, err := columnsFor(typ)
	if err != nil {
		return "", err
	}

	var id string
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE users SET %[1]s = NULL, %[2]s = NULL, updated_at = now()
		WHERE %[1]s = $1 AND %[2]s >= $2
		RETURNING id::text
	`, cols.value, cols.expires), value, now).Scan(&id)
	if err != nil {
		return "", notFound(err)
	}
	return id, nil
}

func (s *Store) MFASecret(ctx context.Context, userID string) (*account.MFASecret, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return nil, err
	}

	secret := &account.MFASecret{UserID: userID}
	err = s.pool.QueryRow(ctx, `SELECT secret, enabled_at FROM mfa_secrets WHERE user_id = $1`, uid).
		Scan(&secret.Secret, &secret.EnabledAt)
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := s.pool.Query(ctx, `SELECT code_hash, used_at IS NOT NULL FROM mfa_backup_codes WHERE user_id = $1`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hash string
			used bool
		)
		if err := rows.Scan(&hash, &used); err != nil {
			return nil, err
		}
		if used {
			secret.UsedCodes = append(secret.UsedCodes, hash)
		} else {
			secret.AvailableCodes = append(secret.AvailableCodes, hash)
		}
	}
	return secret, rows.Err()
}

func (s *Store) EnableMFA(ctx context.Context, secret account.MFASecret) error {
	uid, err := parseUUID(secret.UserID)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO mfa_secrets (user_id, secret, enabled_at)
			SELECT id, $2, now() FROM users WHERE id = $1
			ON CONFLICT (user_id) DO UPDATE SET secret = EXCLUDED.secret, enabled_at = EXCLUDED.enabled_at
		`, uid, secret.Secret)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return account.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, uid); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, h := range secret.AvailableCodes {
			batch.Queue(`INSERT INTO mfa_backup_codes (user_id, code_hash) VALUES ($1, $2)`, uid, h)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) DisableMFA(ctx context.Context, userID string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM mfa_secrets WHERE user_id = $1`, uid)
	return err
}

// ConsumeBackupCode marks the code used only if it is still unused.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE mfa_backup_codes
		SET used_at = now()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`, uid, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) OAuthLink(ctx context.Context, provider, providerID string) (*account.OAuthLink, error) {
	l := &account.OAuthLink{}
	err := s.pool.QueryRow(ctx, `
		SELECT provider, provider_id, user_id::text, email, created_at
		FROM oauth_links WHERE provider = $1 AND provider_id = $2
	`, provider, providerID).Scan(&l.Provider, &l.ProviderID, &l.UserID, &l.Email, &l.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (s *Store) OAuthLinks(ctx context.Context, userID string) ([]account.OAuthLink, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT provider, provider_id, user_id::text, email, created_at
		FROM oauth_links WHERE user_id = $1 ORDER BY provider, provider_id
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []account.OAuthLink{}
	for rows.Next() {
		var l account.OAuthLink
		if err := rows.Scan(&l.Provider, &l.ProviderID, &l.UserID, &l.Email, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CreateOAuthLink(ctx context.Context, link account.OAuthLink) error {
	uid, err := parseUUID(link.UserID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO oauth_links (provider, provider_id, user_id, email)
		VALUES ($1, $2, $3, $4)
	`, link.Provider, link.ProviderID, uid, link.Email)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrLinkExists
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return account.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) DeleteOAuthLink(ctx context.Context, userID, provider, providerID string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM oauth_links WHERE user_id = $1 AND provider = $2 AND provider_id = $3
	`, uid, provider, providerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}
