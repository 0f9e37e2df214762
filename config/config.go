// Package config loads recoverykit-server settings from an optional .env
// file, an optional YAML file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/open-rails/recoverykit/core"
)

// Email delivery modes.
const (
	EmailModeLog   = "log"
	EmailModeSMTP  = "smtp"
	EmailModeQueue = "queue"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Email    EmailConfig    `yaml:"email"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	BaseURL         string        `yaml:"base_url"`
	AppName         string        `yaml:"app_name"`
	AdminJWTSecret  string        `yaml:"admin_jwt_secret"`
	RateLimit       bool          `yaml:"rate_limit"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type EmailConfig struct {
	Mode     string `yaml:"mode"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	SMTPUser string `yaml:"smtp_user"`
	SMTPPass string `yaml:"smtp_password"`
	From     string `yaml:"from_email"`
	SMTPSSL  bool   `yaml:"smtp_ssl"`
}

type RecoveryConfig struct {
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	OTPTTL         time.Duration `yaml:"otp_ttl"`
	ResetTokenTTL  time.Duration `yaml:"reset_token_ttl"`
	MaxOTPAttempts int           `yaml:"max_otp_attempts"`
	ForgotCooldown time.Duration `yaml:"forgot_cooldown"`
	DefaultRole    string        `yaml:"default_role"`
}

type JobsConfig struct {
	SweepCron      string `yaml:"sweep_cron"`
	MaxWorkers     int    `yaml:"max_workers"`
	SweepOnStartup bool   `yaml:"sweep_on_startup"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used before any file or env is applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			AppName:         "Recovery",
			RateLimit:       true,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{MigrateOnStart: true},
		AMQP:     AMQPConfig{Queue: "recovery.events"},
		Email:    EmailConfig{Mode: EmailModeLog, SMTPPort: 587},
		Recovery: RecoveryConfig{
			PendingTTL:     5 * time.Minute,
			OTPTTL:         10 * time.Minute,
			ResetTokenTTL:  10 * time.Minute,
			MaxOTPAttempts: 5,
			ForgotCooldown: 30 * time.Second,
			DefaultRole:    "user",
		},
		Jobs: JobsConfig{SweepCron: "*/10 * * * *", MaxWorkers: 10},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. A missing .env or YAML file is not an error;
// a malformed one is.
func Load() (*Config, error) {
	envFile := envOr("RECOVERYKIT_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("RECOVERYKIT_CONFIG_FILE")); path != "" {
		if err := cfg.readYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	cfg.Email.Mode = strings.ToLower(strings.TrimSpace(cfg.Email.Mode))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	c.Server.ListenAddr = envOr("RECOVERYKIT_LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.BaseURL = envOr("RECOVERYKIT_BASE_URL", c.Server.BaseURL)
	c.Server.AppName = envOr("RECOVERYKIT_APP_NAME", c.Server.AppName)
	c.Server.AdminJWTSecret = envOr("RECOVERYKIT_ADMIN_JWT_SECRET", c.Server.AdminJWTSecret)
	c.Server.RateLimit = envBool("RECOVERYKIT_RATE_LIMIT", c.Server.RateLimit)
	c.Server.TrustedProxies = parseCSVEnv("RECOVERYKIT_TRUSTED_PROXIES", c.Server.TrustedProxies)
	if c.Server.ShutdownTimeout, err = envDur("RECOVERYKIT_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout); err != nil {
		return err
	}

	if v := firstEnv("DB_URL", "DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	c.Database.MigrateOnStart = envBool("RECOVERYKIT_MIGRATE_ON_START", c.Database.MigrateOnStart)
	c.Redis.URL = envOr("REDIS_URL", c.Redis.URL)
	c.AMQP.URL = envOr("AMQP_URL", c.AMQP.URL)
	c.AMQP.Queue = envOr("RECOVERYKIT_AMQP_QUEUE", c.AMQP.Queue)

	c.Email.Mode = envOr("RECOVERYKIT_EMAIL_MODE", c.Email.Mode)
	c.Email.SMTPHost = envOr("SMTP_HOST", c.Email.SMTPHost)
	if c.Email.SMTPPort, err = envInt("SMTP_PORT", c.Email.SMTPPort); err != nil {
		return err
	}
	c.Email.SMTPUser = envOr("SMTP_USER", c.Email.SMTPUser)
	c.Email.SMTPPass = envOr("SMTP_PASSWORD", c.Email.SMTPPass)
	c.Email.From = firstEnvOr(c.Email.From, "SMTP_FROM", "FROM_EMAIL")
	c.Email.SMTPSSL = envBool("SMTP_SSL", c.Email.SMTPSSL)

	if c.Recovery.PendingTTL, err = envDur("RECOVERYKIT_PENDING_TTL", c.Recovery.PendingTTL); err != nil {
		return err
	}
	if c.Recovery.OTPTTL, err = envDur("RECOVERYKIT_OTP_TTL", c.Recovery.OTPTTL); err != nil {
		return err
	}
	if c.Recovery.ResetTokenTTL, err = envDur("RECOVERYKIT_RESET_TOKEN_TTL", c.Recovery.ResetTokenTTL); err != nil {
		return err
	}
	if c.Recovery.MaxOTPAttempts, err = envInt("RECOVERYKIT_MAX_OTP_ATTEMPTS", c.Recovery.MaxOTPAttempts); err != nil {
		return err
	}
	if c.Recovery.ForgotCooldown, err = envDur("RECOVERYKIT_FORGOT_COOLDOWN", c.Recovery.ForgotCooldown); err != nil {
		return err
	}
	c.Recovery.DefaultRole = envOr("RECOVERYKIT_DEFAULT_ROLE", c.Recovery.DefaultRole)

	c.Jobs.SweepCron = envOr("RECOVERYKIT_SWEEP_CRON", c.Jobs.SweepCron)
	if c.Jobs.MaxWorkers, err = envInt("RECOVERYKIT_MAX_WORKERS", c.Jobs.MaxWorkers); err != nil {
		return err
	}
	c.Jobs.SweepOnStartup = envBool("RECOVERYKIT_SWEEP_ON_STARTUP", c.Jobs.SweepOnStartup)

	c.Log.Level = envOr("RECOVERYKIT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("RECOVERYKIT_LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DB_URL (or DATABASE_URL) is required")
	}
	switch c.Email.Mode {
	case EmailModeLog:
	case EmailModeSMTP, EmailModeQueue:
		// queue mode still delivers through SMTP from the River worker.
		if c.Email.SMTPHost == "" || c.Email.From == "" {
			return fmt.Errorf("SMTP_HOST and SMTP_FROM are required when RECOVERYKIT_EMAIL_MODE=%s", c.Email.Mode)
		}
	default:
		return fmt.Errorf("unknown email mode %q (supported: log, smtp, queue)", c.Email.Mode)
	}
	if c.Recovery.PendingTTL <= 0 || c.Recovery.OTPTTL <= 0 || c.Recovery.ResetTokenTTL <= 0 {
		return errors.New("recovery TTLs must be positive")
	}
	if c.Recovery.MaxOTPAttempts <= 0 {
		return errors.New("RECOVERYKIT_MAX_OTP_ATTEMPTS must be positive")
	}
	if c.Recovery.ForgotCooldown < 0 {
		return errors.New("RECOVERYKIT_FORGOT_COOLDOWN must not be negative")
	}
	if c.Jobs.SweepCron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Jobs.SweepCron); err != nil {
			return fmt.Errorf("invalid RECOVERYKIT_SWEEP_CRON %q: %w", c.Jobs.SweepCron, err)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid RECOVERYKIT_LOG_LEVEL: %w", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		return fmt.Errorf("unknown log format %q (supported: json, text)", c.Log.Format)
	}
	return nil
}

// Core returns the core.Config described by c.
func (c *Config) Core() core.Config {
	return core.Config{
		BaseURL:        c.Server.BaseURL,
		AppName:        c.Server.AppName,
		PendingTTL:     c.Recovery.PendingTTL,
		OTPTTL:         c.Recovery.OTPTTL,
		ResetTokenTTL:  c.Recovery.ResetTokenTTL,
		MaxOTPAttempts: c.Recovery.MaxOTPAttempts,
		ForgotCooldown: c.Recovery.ForgotCooldown,
		DefaultRole:    c.Recovery.DefaultRole,
	}
}

// NewLogger builds a logrus logger from the log settings.
func (c *Config) NewLogger() *logrus.Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	if strings.EqualFold(c.Log.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
