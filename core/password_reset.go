package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/open-rails/recoverykit/password"
)

// ForgotResult is the body of a forgot-password response. Sent is nil when no
// delivery was attempted.
type ForgotResult struct {
	Exists  bool   `json:"exists"`
	Sent    *bool  `json:"sent,omitempty"`
	Message string `json:"message"`
}

// VerifyResult carries the reset landing URL and the token embedded in it.
type VerifyResult struct {
	Redirect string `json:"redirect"`
	Token    string `json:"-"`
}

const (
	msgForgotInvalidEmail = "Please enter a valid email address"
	msgForgotUnknown      = "This email is not registered"
	msgForgotSent         = "A verification code has been sent to your email"
	msgForgotNotSent      = "Could not send the verification code, try again later"
	msgForgotCooldown     = "A code was sent recently, please wait before requesting another"
	msgPasswordReset      = "Password updated, you can now log in"
)

func boolPtr(b bool) *bool { return &b }

// RequestPasswordOTP issues a six digit reset code for a registered email.
// Unknown and malformed emails get {exists:false} with no side effects.
func (s *Service) RequestPasswordOTP(ctx context.Context, email string) (ForgotResult, error) {
	email = normalizeEmail(email)
	if !ValidEmail(email) {
		return ForgotResult{Exists: false, Message: msgForgotInvalidEmail}, nil
	}
	if err := s.storeReady(); err != nil {
		return ForgotResult{}, err
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) || (err == nil && u == nil) {
		return ForgotResult{Exists: false, Message: msgForgotUnknown}, nil
	}
	if err != nil {
		return ForgotResult{}, s.storeErr("find user", err)
	}

	if _, err := s.store.DeleteExpiredOTPs(ctx, s.now()); err != nil {
		s.log.WithError(err).Warn("expired otp cleanup failed")
	}
	if s.otpCooldownActive(ctx, email) {
		return ForgotResult{Exists: true, Sent: boolPtr(false), Message: msgForgotCooldown}, nil
	}

	notSent := ForgotResult{Exists: true, Sent: boolPtr(false), Message: msgForgotNotSent}
	code, err := randomOTP()
	if err != nil {
		s.log.WithError(err).Error("generate otp")
		return notSent, nil
	}
	hash, err := password.HashBcrypt(code)
	if err != nil {
		s.log.WithError(err).Error("hash otp")
		return notSent, nil
	}
	now := s.now()
	otp := &OTPChallenge{
		Email:     email,
		OTPHash:   hash,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
		CreatedAt: now,
	}
	if err := s.store.InsertOTP(ctx, otp); err != nil {
		s.log.WithError(err).Error("insert otp")
		return notSent, nil
	}
	if err := s.send(ctx, s.otpMessage(email, code)); err != nil {
		s.log.WithError(err).WithField("email", email).Error("otp email failed")
		if _, delErr := s.store.DeleteOTP(ctx, otp.ID); delErr != nil {
			s.log.WithError(delErr).Error("delete undeliverable otp")
		}
		return notSent, nil
	}
	s.markOTPCooldown(ctx, email)
	s.logEvent(ctx, EventOTPIssued, email, nil)
	return ForgotResult{Exists: true, Sent: boolPtr(true), Message: msgForgotSent}, nil
}

// VerifyPasswordOTP checks code against the newest challenge for email and,
// on success, exchanges it for a reset token.
func (s *Service) VerifyPasswordOTP(ctx context.Context, email, code string) (VerifyResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return VerifyResult{}, ErrMissingFields
	}
	if err := s.storeReady(); err != nil {
		return VerifyResult{}, err
	}
	otp, err := s.store.FindLatestOTPByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) || (err == nil && otp == nil) {
		return VerifyResult{}, ErrOTPInvalid
	}
	if err != nil {
		return VerifyResult{}, s.storeErr("find otp", err)
	}
	if expired(s.now(), otp.ExpiresAt) {
		s.deleteOTP(ctx, otp.ID)
		return VerifyResult{}, ErrOTPExpired
	}
	if otp.Attempts >= s.cfg.MaxOTPAttempts {
		s.deleteOTP(ctx, otp.ID)
		s.logEvent(ctx, EventOTPLocked, email, &otp.Attempts)
		return VerifyResult{}, ErrOTPLocked
	}

	ok, err := password.VerifyBcrypt(otp.OTPHash, code)
	if err != nil {
		s.log.WithError(err).Error("compare otp")
	}
	if !ok {
		n, err := s.store.IncrementOTPAttempts(ctx, otp.ID)
		if errors.Is(err, ErrNotFound) {
			return VerifyResult{}, ErrOTPInvalid
		}
		if err != nil {
			return VerifyResult{}, s.storeErr("increment otp attempts", err)
		}
		if n >= s.cfg.MaxOTPAttempts {
			s.deleteOTP(ctx, otp.ID)
			s.logEvent(ctx, EventOTPLocked, email, &n)
			return VerifyResult{}, ErrOTPLocked
		}
		s.logEvent(ctx, EventOTPFailed, email, &n)
		return VerifyResult{}, ErrOTPInvalid
	}

	claimed, err := s.store.DeleteOTP(ctx, otp.ID)
	if err != nil {
		return VerifyResult{}, s.storeErr("delete otp", err)
	}
	if !claimed {
		return VerifyResult{}, ErrOTPInvalid
	}
	s.clearOTPCooldown(ctx, email)

	token, err := randomHex(32)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: token: %v", ErrStore, err)
	}
	now := s.now()
	rt := &ResetToken{
		Email:     email,
		Token:     token,
		ExpiresAt: now.Add(s.cfg.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.store.InsertResetToken(ctx, rt); err != nil {
		return VerifyResult{}, s.storeErr("insert reset token", err)
	}
	return VerifyResult{Redirect: s.resetRedirect(token), Token: token}, nil
}

func (s *Service) resetRedirect(token string) string {
	return s.cfg.ResetPasswordPath + "?token=" + url.QueryEscape(token)
}

// ResetPassword consumes token and replaces the account's password hash.
func (s *Service) ResetPassword(ctx context.Context, token, pass string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}
	if password.Validate(pass) != nil {
		return "", ErrPasswordTooShort
	}
	if err := s.storeReady(); err != nil {
		return "", err
	}
	rt, err := s.store.FindResetToken(ctx, token)
	if errors.Is(err, ErrNotFound) || (err == nil && rt == nil) {
		return "", ErrTokenInvalid
	}
	if err != nil {
		return "", s.storeErr("find reset token", err)
	}
	if expired(s.now(), rt.ExpiresAt) {
		if _, err := s.store.DeleteResetToken(ctx, rt.ID); err != nil {
			s.log.WithError(err).Error("delete expired reset token")
		}
		return "", ErrTokenExpired
	}

	phc, err := password.HashArgon2id(pass)
	if err != nil {
		return "", fmt.Errorf("%w: hash password: %v", ErrStore, err)
	}

	// Claim before writing so concurrent submissions of one token apply once.
	claimed, err := s.store.DeleteResetToken(ctx, rt.ID)
	if err != nil {
		return "", s.storeErr("delete reset token", err)
	}
	if !claimed {
		return "", ErrTokenInvalid
	}
	if err := s.store.UpdatePasswordHash(ctx, rt.Email, phc); err != nil {
		s.restoreResetToken(ctx, *rt)
		return "", s.storeErr("update password", err)
	}
	s.logEvent(ctx, EventPasswordReset, rt.Email, nil)
	return msgPasswordReset, nil
}

// restoreResetToken puts a claimed token back after a failed write so the
// caller can retry with the same token.
func (s *Service) restoreResetToken(ctx context.Context, rt ResetToken) {
	if err := s.store.InsertResetToken(ctx, &rt); err != nil {
		s.log.WithError(err).WithField("email", rt.Email).Error("restore reset token")
	}
}

func (s *Service) deleteOTP(ctx context.Context, id string) {
	if _, err := s.store.DeleteOTP(ctx, id); err != nil {
		s.log.WithError(err).Error("delete otp")
	}
}
