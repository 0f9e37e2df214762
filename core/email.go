package core

import (
	"context"
	"fmt"
	"html"
	"net/url"
)

// Message is an outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// EmailSender delivers messages. A nil error means the message was accepted
// for delivery.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// send delivers msg, or logs it when no sender is configured (development).
func (s *Service) send(ctx context.Context, msg Message) error {
	if s.email == nil {
		s.log.WithField("to", msg.To).WithField("subject", msg.Subject).
			Infof("[recoverykit/dev-email] %s", msg.HTML)
		return nil
	}
	return s.email.Send(ctx, msg)
}

func (s *Service) confirmURL(token string) string {
	return s.cfg.BaseURL + s.cfg.ConfirmPath + "?token=" + url.QueryEscape(token)
}

func (s *Service) confirmationMessage(to, name, token string) Message {
	link := s.confirmURL(token)
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Confirm your %s account", s.cfg.AppName),
		HTML: fmt.Sprintf(`<p>Hi %s,</p><p>Confirm your email address to activate your account:</p>`+
			`<p><a href="%s">%s</a></p><p>This link expires in %d minutes.</p>`,
			html.EscapeString(name), html.EscapeString(link), html.EscapeString(link),
			int(s.cfg.PendingTTL.Minutes())),
	}
}

func (s *Service) otpMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your %s password reset code", s.cfg.AppName),
		HTML: fmt.Sprintf(`<p>Your password reset code is <strong>%s</strong>.</p>`+
			`<p>It expires in %d minutes. If you did not request it, ignore this email.</p>`,
			code, int(s.cfg.OTPTTL.Minutes())),
	}
}
