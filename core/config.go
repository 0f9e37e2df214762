package core

import (
	"strings"
	"time"
)

// Config holds the tunables of the recovery workflow. Zero values fall back
// to the defaults below.
type Config struct {
	// BaseURL prefixes links sent by email and the confirm redirect target
	// (e.g. "https://app.example.com"). Empty means relative paths.
	BaseURL string
	// AppName appears in email subjects.
	AppName string

	ConfirmPath       string // default "/auth/confirm"
	ActivatedPath     string // default "/activated"
	ResetPasswordPath string // default "/reset-password"

	PendingTTL    time.Duration // default 5m
	OTPTTL        time.Duration // default 10m
	ResetTokenTTL time.Duration // default 10m

	// MaxOTPAttempts is the wrong-code ceiling; reaching it deletes the challenge.
	MaxOTPAttempts int
	// ForgotCooldown throttles repeated OTP requests per email. 0 disables it.
	ForgotCooldown time.Duration
	// DefaultRole is assigned to accounts created on activation.
	DefaultRole string
}

const (
	defaultConfirmPath       = "/auth/confirm"
	defaultActivatedPath     = "/activated"
	defaultResetPasswordPath = "/reset-password"
	defaultPendingTTL        = 5 * time.Minute
	defaultOTPTTL            = 10 * time.Minute
	defaultResetTokenTTL     = 10 * time.Minute
	defaultMaxOTPAttempts    = 5
	defaultRole              = "user"
	defaultAppName           = "Recovery"
)

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.AppName == "" {
		c.AppName = defaultAppName
	}
	if c.ConfirmPath == "" {
		c.ConfirmPath = defaultConfirmPath
	}
	if c.ActivatedPath == "" {
		c.ActivatedPath = defaultActivatedPath
	}
	if c.ResetPasswordPath == "" {
		c.ResetPasswordPath = defaultResetPasswordPath
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = defaultPendingTTL
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = defaultOTPTTL
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = defaultResetTokenTTL
	}
	if c.MaxOTPAttempts <= 0 {
		c.MaxOTPAttempts = defaultMaxOTPAttempts
	}
	if c.ForgotCooldown < 0 {
		c.ForgotCooldown = 0
	}
	if c.DefaultRole == "" {
		c.DefaultRole = defaultRole
	}
	return c
}
