package core

import "context"

// Provider is the recovery surface needed by the built-in HTTP handlers.
// It is implemented by *Service.
type Provider interface {
	// Account activation
	RequestRegistration(ctx context.Context, name, email, pass string) (string, error)
	ConfirmRegistration(ctx context.Context, token string) ConfirmOutcome
	RedirectURL(o ConfirmOutcome) string

	// Password recovery
	RequestPasswordOTP(ctx context.Context, email string) (ForgotResult, error)
	VerifyPasswordOTP(ctx context.Context, email, code string) (VerifyResult, error)
	ResetPassword(ctx context.Context, token, pass string) (string, error)

	// Maintenance
	SweepExpired(ctx context.Context) (SweepResult, error)

	HasEmailSender() bool
}

var _ Provider = (*Service)(nil)
