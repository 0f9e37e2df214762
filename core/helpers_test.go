package core_test

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/open-rails/recoverykit/core"
	memorystore "github.com/open-rails/recoverykit/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureSender struct {
	mu   sync.Mutex
	sent []core.Message
	fail bool
}

func (c *captureSender) Send(_ context.Context, msg core.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("smtp down")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) last(t *testing.T) core.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent, "no email sent")
	return c.sent[len(c.sent)-1]
}

type captureEvents struct {
	mu     sync.Mutex
	events []core.RecoveryEvent
}

func (c *captureEvents) LogRecoveryEvent(_ context.Context, e core.RecoveryEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureEvents) types() []core.RecoveryEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.RecoveryEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Event)
	}
	return out
}

type harness struct {
	svc    *core.Service
	store  *memorystore.Store
	mail   *captureSender
	events *captureEvents
	clock  *fakeClock
}

func newHarness(t *testing.T, cfg core.Config) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := &harness{
		store:  memorystore.NewStore(),
		mail:   &captureSender{},
		events: &captureEvents{},
		clock:  clock,
	}
	h.svc = core.NewService(cfg).
		WithStore(h.store).
		WithEmailSender(h.mail).
		WithEventLogger(h.events).
		WithClock(clock.Now).
		WithLogger(logger)
	return h
}

var (
	tokenRe = regexp.MustCompile(`token=([0-9a-f]{64})`)
	codeRe  = regexp.MustCompile(`<strong>(\d{6})</strong>`)
)

func (h *harness) confirmToken(t *testing.T) string {
	t.Helper()
	m := tokenRe.FindStringSubmatch(h.mail.last(t).HTML)
	require.Len(t, m, 2)
	return m[1]
}

func (h *harness) otpCode(t *testing.T) string {
	t.Helper()
	m := codeRe.FindStringSubmatch(h.mail.last(t).HTML)
	require.Len(t, m, 2)
	return m[1]
}

// registerUser creates an activated account directly in the store.
func (h *harness) registerUser(t *testing.T, email string) {
	t.Helper()
	_, err := h.svc.RequestRegistration(context.Background(), "Ann", email, "secret1")
	require.NoError(t, err)
	out := h.svc.ConfirmRegistration(context.Background(), h.confirmToken(t))
	require.Equal(t, core.ConfirmSuccess, out.Status)
}
