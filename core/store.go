package core

import (
	"context"
	"time"
)

// PendingRegistration is an unconfirmed signup awaiting its email link.
type PendingRegistration struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Token        string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// OTPChallenge is an outstanding password-reset code. Only the newest row per
// email is considered live.
type OTPChallenge struct {
	ID        string
	Email     string
	OTPHash   string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

// ResetToken is a one-time capability to set a new password.
type ResetToken struct {
	ID        string
	Email     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserAccount is the application's account row. The recovery workflow only
// checks existence, inserts on activation, and replaces password hashes.
type UserAccount struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// expired reports whether a secret with the given expiry is no longer live at now.
func expired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*UserAccount, error)
	InsertUser(ctx context.Context, u *UserAccount) error
	UpdatePasswordHash(ctx context.Context, email, hash string) error
}

type PendingRegistrationStore interface {
	FindLatestPendingByEmail(ctx context.Context, email string) (*PendingRegistration, error)
	FindPendingByToken(ctx context.Context, token string) (*PendingRegistration, error)
	InsertPending(ctx context.Context, p *PendingRegistration) error
	DeletePending(ctx context.Context, id string) (bool, error)
	DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error)
}

type OTPStore interface {
	FindLatestOTPByEmail(ctx context.Context, email string) (*OTPChallenge, error)
	InsertOTP(ctx context.Context, o *OTPChallenge) error
	// IncrementOTPAttempts atomically adds one and returns the new count.
	IncrementOTPAttempts(ctx context.Context, id string) (int, error)
	DeleteOTP(ctx context.Context, id string) (bool, error)
	DeleteExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

type ResetTokenStore interface {
	FindResetToken(ctx context.Context, token string) (*ResetToken, error)
	InsertResetToken(ctx context.Context, t *ResetToken) error
	DeleteResetToken(ctx context.Context, id string) (bool, error)
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Store is everything the service persists. Missing rows are reported as
// ErrNotFound and a duplicate account email as ErrDuplicate.
type Store interface {
	UserStore
	PendingRegistrationStore
	OTPStore
	ResetTokenStore
}
