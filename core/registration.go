package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/open-rails/recoverykit/password"
)

// ConfirmStatus is the terminal state reported by ConfirmRegistration.
type ConfirmStatus string

const (
	ConfirmSuccess ConfirmStatus = "success"
	ConfirmExpired ConfirmStatus = "expired"
	ConfirmInvalid ConfirmStatus = "invalid"
	ConfirmError   ConfirmStatus = "error"
)

// ConfirmOutcome is the result of an activation attempt. Email is set when
// the pending row was found.
type ConfirmOutcome struct {
	Status ConfirmStatus
	Email  string
}

// RedirectURL builds the activation landing URL for o.
func (s *Service) RedirectURL(o ConfirmOutcome) string {
	q := "status=" + url.QueryEscape(string(o.Status))
	if o.Email != "" {
		q += "&email=" + url.QueryEscape(o.Email)
	}
	return s.cfg.BaseURL + s.cfg.ActivatedPath + "?" + q
}

const msgRegistrationRequested = "Registration received, check your email to confirm your account"

// RequestRegistration validates a signup, stores it as pending and emails a
// confirmation link. The token is never returned to the caller.
func (s *Service) RequestRegistration(ctx context.Context, name, email, pass string) (string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return "", ErrNameRequired
	}
	if !ValidEmail(email) {
		return "", ErrInvalidEmail
	}
	if password.Validate(pass) != nil {
		return "", ErrPasswordTooShort
	}
	if err := s.storeReady(); err != nil {
		return "", err
	}

	if u, err := s.store.FindUserByEmail(ctx, email); err == nil && u != nil {
		return "", ErrAlreadyActivated
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return "", s.storeErr("find user", err)
	}

	pr, err := s.store.FindLatestPendingByEmail(ctx, email)
	switch {
	case err == nil && pr != nil:
		if !expired(s.now(), pr.ExpiresAt) {
			return "", ErrPendingConfirmation
		}
		if _, err := s.store.DeletePending(ctx, pr.ID); err != nil {
			return "", s.storeErr("delete expired pending", err)
		}
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", s.storeErr("find pending", err)
	}

	phc, err := password.HashArgon2id(pass)
	if err != nil {
		return "", fmt.Errorf("%w: hash password: %v", ErrStore, err)
	}
	token, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrStore, err)
	}
	now := s.now()
	pending := &PendingRegistration{
		Email:        email,
		Name:         name,
		PasswordHash: phc,
		Token:        token,
		ExpiresAt:    now.Add(s.cfg.PendingTTL),
		CreatedAt:    now,
	}
	if err := s.store.InsertPending(ctx, pending); err != nil {
		return "", s.storeErr("insert pending", err)
	}

	if err := s.send(ctx, s.confirmationMessage(email, name, token)); err != nil {
		s.log.WithError(err).WithField("email", email).Error("confirmation email failed")
		if _, delErr := s.store.DeletePending(ctx, pending.ID); delErr != nil {
			s.log.WithError(delErr).Error("delete undeliverable pending registration")
		}
		return "", ErrEmailDelivery
	}
	s.logEvent(ctx, EventRegistrationRequested, email, nil)
	return msgRegistrationRequested, nil
}

// ConfirmRegistration activates the account behind token. Every branch that
// found the pending row deletes it.
func (s *Service) ConfirmRegistration(ctx context.Context, token string) ConfirmOutcome {
	token = strings.TrimSpace(token)
	if token == "" {
		return ConfirmOutcome{Status: ConfirmInvalid}
	}
	if s.storeReady() != nil {
		return ConfirmOutcome{Status: ConfirmError}
	}
	pr, err := s.store.FindPendingByToken(ctx, token)
	if errors.Is(err, ErrNotFound) || (err == nil && pr == nil) {
		return ConfirmOutcome{Status: ConfirmInvalid}
	}
	if err != nil {
		s.log.WithError(err).Error("find pending by token")
		return ConfirmOutcome{Status: ConfirmError}
	}
	out := ConfirmOutcome{Email: pr.Email}

	if expired(s.now(), pr.ExpiresAt) {
		s.deletePending(ctx, pr.ID)
		out.Status = ConfirmExpired
		return out
	}

	u, err := s.store.FindUserByEmail(ctx, pr.Email)
	switch {
	case err == nil && u != nil:
		// Already activated by an earlier confirm.
	case err != nil && !errors.Is(err, ErrNotFound):
		s.log.WithError(err).Error("find user on confirm")
		s.deletePending(ctx, pr.ID)
		out.Status = ConfirmError
		return out
	default:
		acct := &UserAccount{
			Email:        pr.Email,
			Name:         pr.Name,
			PasswordHash: pr.PasswordHash,
			Role:         s.cfg.DefaultRole,
			CreatedAt:    s.now(),
		}
		if err := s.store.InsertUser(ctx, acct); err != nil && !errors.Is(err, ErrDuplicate) {
			s.log.WithError(err).Error("insert user on confirm")
			s.deletePending(ctx, pr.ID)
			out.Status = ConfirmError
			return out
		}
		s.logEvent(ctx, EventAccountActivated, pr.Email, nil)
	}

	s.deletePending(ctx, pr.ID)
	out.Status = ConfirmSuccess
	return out
}

func (s *Service) deletePending(ctx context.Context, id string) {
	if _, err := s.store.DeletePending(ctx, id); err != nil {
		s.log.WithError(err).Error("delete pending registration")
	}
}

// storeErr logs the raw failure and returns an ErrStore wrapper safe to map.
func (s *Service) storeErr(op string, err error) error {
	s.log.WithError(err).WithField("op", op).Error("store failure")
	return fmt.Errorf("%w: %s", ErrStore, op)
}
