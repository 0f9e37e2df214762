package core

import (
	"context"
	"time"
)

const keyOTPCooldown = "recovery:otp_cooldown:"

type otpCooldownData struct {
	IssuedAt time.Time `json:"issued_at"`
}

// otpCooldownActive reports whether an OTP was issued to email within the
// configured cooldown. Store errors fail open.
func (s *Service) otpCooldownActive(ctx context.Context, email string) bool {
	if s.cfg.ForgotCooldown <= 0 || !s.useEphemeralStore() {
		return false
	}
	var d otpCooldownData
	ok, err := s.ephemGetJSON(ctx, keyOTPCooldown+email, &d)
	if err != nil {
		s.log.WithError(err).WithField("ephemeral", s.EphemeralMode()).Warn("otp cooldown lookup failed")
		return false
	}
	return ok && s.now().Sub(d.IssuedAt) < s.cfg.ForgotCooldown
}

func (s *Service) markOTPCooldown(ctx context.Context, email string) {
	if s.cfg.ForgotCooldown <= 0 || !s.useEphemeralStore() {
		return
	}
	if err := s.ephemSetJSON(ctx, keyOTPCooldown+email, otpCooldownData{IssuedAt: s.now()}, s.cfg.ForgotCooldown); err != nil {
		s.log.WithError(err).WithField("ephemeral", s.EphemeralMode()).Warn("otp cooldown not recorded")
	}
}

// clearOTPCooldown drops the cooldown once the code has been used so a fresh
// request is not throttled.
func (s *Service) clearOTPCooldown(ctx context.Context, email string) {
	if s.cfg.ForgotCooldown <= 0 || !s.useEphemeralStore() {
		return
	}
	if err := s.ephemDel(ctx, keyOTPCooldown+email); err != nil {
		s.log.WithError(err).WithField("ephemeral", s.EphemeralMode()).Warn("otp cooldown not cleared")
	}
}
