package core

import (
	"context"
	"time"
)

// RecoveryEventType identifies a step of the recovery workflow.
type RecoveryEventType string

const (
	EventRegistrationRequested RecoveryEventType = "registration_requested"
	EventAccountActivated      RecoveryEventType = "account_activated"
	EventOTPIssued             RecoveryEventType = "otp_issued"
	EventOTPFailed             RecoveryEventType = "otp_failed"
	EventOTPLocked             RecoveryEventType = "otp_locked"
	EventPasswordReset         RecoveryEventType = "password_reset"
)

// RecoveryEvent is a best-effort, append-only record intended for external
// sinks. It never carries tokens, codes or hashes.
type RecoveryEvent struct {
	OccurredAt time.Time         `json:"occurred_at"`
	Event      RecoveryEventType `json:"event"`
	Email      string            `json:"email"`
	Attempts   *int              `json:"attempts,omitempty"`
	IPAddr     *string           `json:"ip_addr,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
}

// EventLogger records recovery events to an external sink (e.g., a message broker).
// Implementations should be non-blocking and best-effort.
type EventLogger interface {
	LogRecoveryEvent(ctx context.Context, e RecoveryEvent) error
}

// WithEventLogger sets the recovery event sink.
func (s *Service) WithEventLogger(l EventLogger) *Service { s.events = l; return s }

func (s *Service) logEvent(ctx context.Context, typ RecoveryEventType, email string, attempts *int) {
	if s.events == nil {
		return
	}
	ip, ua := requestMetaFromContext(ctx)
	e := RecoveryEvent{
		OccurredAt: s.now(),
		Event:      typ,
		Email:      email,
		Attempts:   attempts,
		IPAddr:     ip,
		UserAgent:  ua,
	}
	if err := s.events.LogRecoveryEvent(ctx, e); err != nil {
		s.log.WithError(err).WithField("event", string(typ)).Warn("recovery event not recorded")
	}
}
