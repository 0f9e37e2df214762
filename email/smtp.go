// Package email delivers core.Message values over SMTP or to the log.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/open-rails/recoverykit/core"
)

// SMTPConfig describes an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLSServerName overrides the name checked against the server certificate.
	TLSServerName string
	// SSL forces implicit TLS (port 465 style). gomail enables it for 465 by default.
	SSL bool
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends messages through a gomail dialer. Each Send opens its own
// connection.
type SMTPSender struct {
	from   string
	dialer dialer
}

var _ core.EmailSender = (*SMTPSender)(nil)

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SSL {
		d.SSL = true
	}
	serverName := cfg.TLSServerName
	if serverName == "" {
		serverName = cfg.Host
	}
	d.TLSConfig = &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	return &SMTPSender{from: cfg.From, dialer: d}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(buildMessage(s.from, msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	return nil
}

func buildMessage(from string, msg core.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return m
}
