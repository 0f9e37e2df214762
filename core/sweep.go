package core

import "context"

// SweepResult counts rows removed by SweepExpired.
type SweepResult struct {
	Pending     int64 `json:"pending"`
	OTPs        int64 `json:"otps"`
	ResetTokens int64 `json:"reset_tokens"`
}

// SweepExpired deletes every expired pending registration, OTP challenge and
// reset token. Read paths delete lazily as well; this bounds table growth.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if err := s.storeReady(); err != nil {
		return res, err
	}
	now := s.now()
	var err error
	if res.Pending, err = s.store.DeleteExpiredPending(ctx, now); err != nil {
		return res, s.storeErr("sweep pending", err)
	}
	if res.OTPs, err = s.store.DeleteExpiredOTPs(ctx, now); err != nil {
		return res, s.storeErr("sweep otps", err)
	}
	if res.ResetTokens, err = s.store.DeleteExpiredResetTokens(ctx, now); err != nil {
		return res, s.storeErr("sweep reset tokens", err)
	}
	if total := res.Pending + res.OTPs + res.ResetTokens; total > 0 {
		s.log.WithField("pending", res.Pending).WithField("otps", res.OTPs).
			WithField("reset_tokens", res.ResetTokens).Info("swept expired recovery rows")
	}
	return res, nil
}
