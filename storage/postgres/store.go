// Package pgstore persists recovery state in Postgres through pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/open-rails/recoverykit/core"
)

// DB is the subset of pgxpool.Pool (or pgx.Tx) the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements core.Store against the tables in migrations/postgres.
type Store struct {
	db DB
}

var _ core.Store = (*Store)(nil)

func New(db DB) *Store { return &Store{db: db} }

// NewFromPool is a convenience for the common pgxpool case.
func NewFromPool(pool *pgxpool.Pool) *Store { return New(pool) }

const uniqueViolation = "23505"

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*core.UserAccount, error) {
	var u core.UserAccount
	err := s.db.QueryRow(ctx, `
SELECT id::text, email, name, password_hash, role, created_at
FROM users WHERE lower(email) = $1 LIMIT 1`, normalize(email)).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *core.UserAccount) error {
	u.ID = newID(u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO users (id, email, name, password_hash, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, normalize(u.Email), u.Name, u.PasswordHash, u.Role, u.CreatedAt)
	return mapErr(err)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE lower(email) = $1`, normalize(email), hash)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) FindLatestPendingByEmail(ctx context.Context, email string) (*core.PendingRegistration, error) {
	return s.scanPending(s.db.QueryRow(ctx, `
SELECT id::text, email, name, password_hash, token, expires_at, created_at
FROM pending_user_tokens WHERE email = $1
ORDER BY created_at DESC LIMIT 1`, normalize(email)))
}

func (s *Store) FindPendingByToken(ctx context.Context, token string) (*core.PendingRegistration, error) {
	return s.scanPending(s.db.QueryRow(ctx, `
SELECT id::text, email, name, password_hash, token, expires_at, created_at
FROM pending_user_tokens WHERE token = $1`, token))
}

func (s *Store) scanPending(row pgx.Row) (*core.PendingRegistration, error) {
	var p core.PendingRegistration
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &p.Token, &p.ExpiresAt, &p.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Store) InsertPending(ctx context.Context, p *core.PendingRegistration) error {
	p.ID = newID(p.ID)
	p.Email = normalize(p.Email)
	_, err := s.db.Exec(ctx, `
INSERT INTO pending_user_tokens (id, email, name, password_hash, token, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Email, p.Name, p.PasswordHash, p.Token, p.ExpiresAt, p.CreatedAt)
	return mapErr(err)
}

func (s *Store) DeletePending(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM pending_user_tokens WHERE id = $1`, id)
}

func (s *Store) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteExpired(ctx, `DELETE FROM pending_user_tokens WHERE expires_at <= $1`, now)
}

func (s *Store) FindLatestOTPByEmail(ctx context.Context, email string) (*core.OTPChallenge, error) {
	var o core.OTPChallenge
	err := s.db.QueryRow(ctx, `
SELECT id::text, email, otp_hash, expires_at, attempts, created_at
FROM password_reset_otps WHERE email = $1
ORDER BY created_at DESC LIMIT 1`, normalize(email)).
		Scan(&o.ID, &o.Email, &o.OTPHash, &o.ExpiresAt, &o.Attempts, &o.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (s *Store) InsertOTP(ctx context.Context, o *core.OTPChallenge) error {
	o.ID = newID(o.ID)
	o.Email = normalize(o.Email)
	_, err := s.db.Exec(ctx, `
INSERT INTO password_reset_otps (id, email, otp_hash, expires_at, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Email, o.OTPHash, o.ExpiresAt, o.Attempts, o.CreatedAt)
	return mapErr(err)
}

func (s *Store) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `UPDATE password_reset_otps SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).Scan(&n)
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (s *Store) DeleteOTP(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM password_reset_otps WHERE id = $1`, id)
}

func (s *Store) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteExpired(ctx, `DELETE FROM password_reset_otps WHERE expires_at <= $1`, now)
}

func (s *Store) FindResetToken(ctx context.Context, token string) (*core.ResetToken, error) {
	var t core.ResetToken
	err := s.db.QueryRow(ctx, `
SELECT id::text, email, token, expires_at, created_at
FROM password_reset_tokens WHERE token = $1`, token).
		Scan(&t.ID, &t.Email, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *Store) InsertResetToken(ctx context.Context, t *core.ResetToken) error {
	t.ID = newID(t.ID)
	t.Email = normalize(t.Email)
	_, err := s.db.Exec(ctx, `
INSERT INTO password_reset_tokens (id, email, token, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Email, t.Token, t.ExpiresAt, t.CreatedAt)
	return mapErr(err)
}

func (s *Store) DeleteResetToken(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM password_reset_tokens WHERE id = $1`, id)
}

func (s *Store) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteExpired(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= $1`, now)
}

// deleteByID reports whether this call removed the row, which makes it usable
// as a single-use claim.
func (s *Store) deleteByID(ctx context.Context, q, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) deleteExpired(ctx context.Context, q string, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, q, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
