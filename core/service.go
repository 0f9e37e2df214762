package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

// Service is the core recovery service used by HTTP adapters and jobs.
type Service struct {
	cfg            Config
	store          Store
	email          EmailSender
	events         EventLogger
	ephemeralStore EphemeralStore
	ephemeralMode  EphemeralMode
	clock          func() time.Time
	log            logrus.FieldLogger
}

func NewService(cfg Config) *Service {
	return &Service{
		cfg:           cfg.withDefaults(),
		ephemeralMode: EphemeralMemory,
		clock:         time.Now,
		log:           logrus.StandardLogger(),
	}
}

// WithStore sets the persistence backend. Operations fail with ErrStore until one is set.
func (s *Service) WithStore(st Store) *Service { s.store = st; return s }

// WithEmailSender sets the email sender dependency.
func (s *Service) WithEmailSender(sender EmailSender) *Service { s.email = sender; return s }

// HasEmailSender returns true if an email sender is configured.
func (s *Service) HasEmailSender() bool { return s.email != nil }

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.clock = now
	}
	return s
}

// WithLogger sets the logger used for server-side diagnostics.
func (s *Service) WithLogger(l logrus.FieldLogger) *Service {
	if l != nil {
		s.log = l
	}
	return s
}

// Config returns the effective configuration (defaults applied).
func (s *Service) Config() Config { return s.cfg }

func (s *Service) now() time.Time { return s.clock().UTC() }

func (s *Service) storeReady() error {
	if s.store == nil {
		return fmt.Errorf("%w: no store configured", ErrStore)
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether email has the shape local@domain.tld.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// randomOTP returns a six digit code in [100000, 999999].
func randomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
