package authhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/open-rails/recoverykit/core"
	memorystore "github.com/open-rails/recoverykit/storage/memory"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []core.Message
}

func (c *captureSender) Send(_ context.Context, m core.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *captureSender) match(t *testing.T, re *regexp.Regexp) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.msgs)
	m := re.FindStringSubmatch(c.msgs[len(c.msgs)-1].HTML)
	require.Len(t, m, 2)
	return m[1]
}

var (
	confirmTokenRe = regexp.MustCompile(`token=([0-9a-f]{64})`)
	otpCodeRe      = regexp.MustCompile(`<strong>(\d{6})</strong>`)
)

type testEnv struct {
	s     *Service
	h     http.Handler
	store *memorystore.Store
	mail  *captureSender
	now   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: memorystore.NewStore(),
		mail:  &captureSender{},
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	coreSvc := core.NewService(core.Config{}).
		WithStore(env.store).
		WithEmailSender(env.mail).
		WithClock(func() time.Time { return env.now })
	env.s = Wrap(coreSvc).WithLogger(logger).DisableRateLimiter()
	env.h = env.s.APIHandler()
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rdr)
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	env.h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRegisterAndConfirm(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/auth/register-request", `{"name":"A","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, decodeBody(t, w)["message"])
	require.NotContains(t, w.Body.String(), "token")

	token := env.mail.match(t, confirmTokenRe)
	w = env.do(http.MethodGet, "/auth/confirm?token="+token, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/activated?status=success&email=a%40x.com", w.Header().Get("Location"))
	require.Len(t, env.store.Users(), 1)

	w = env.do(http.MethodGet, "/auth/confirm?token="+token, "")
	require.Equal(t, "/activated?status=invalid", w.Header().Get("Location"))

	w = env.do(http.MethodGet, "/auth/confirm", "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/activated?status=invalid", w.Header().Get("Location"))

	w = env.do(http.MethodPost, "/auth/register-request", `{"name":"A","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "already_activated", decodeBody(t, w)["error"])
}

func TestConfirmExpiredRedirect(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/auth/register-request", `{"name":"A","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	token := env.mail.match(t, confirmTokenRe)

	env.now = env.now.Add(6 * time.Minute)
	w = env.do(http.MethodGet, "/auth/confirm?token="+token, "")
	require.Equal(t, "/activated?status=expired&email=a%40x.com", w.Header().Get("Location"))
	require.Empty(t, env.store.Pending())
}

func TestForgotVerifyReset(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.InsertUser(context.Background(), &core.UserAccount{Email: "a@x.com", Name: "A", PasswordHash: "old", Role: "user"}))

	w := env.do(http.MethodPost, "/auth/forgot", `{"email":"ghost@x.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, decodeBody(t, w)["exists"])

	w = env.do(http.MethodPost, "/auth/forgot", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, true, body["exists"])
	require.Equal(t, true, body["sent"])
	code := env.mail.match(t, otpCodeRe)

	w = env.do(http.MethodPost, "/auth/verify-otp", `{"email":"a@x.com","otp":"`+code+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	redirect, _ := decodeBody(t, w)["redirect"].(string)
	require.Regexp(t, `^/reset-password\?token=[0-9a-f]{64}$`, redirect)
	token := strings.TrimPrefix(redirect, "/reset-password?token=")

	w = env.do(http.MethodPost, "/auth/reset-password", `{"token":"`+token+`","password":"newpass1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEqual(t, "old", env.store.Users()[0].PasswordHash)

	w = env.do(http.MethodPost, "/auth/reset-password", `{"token":"`+token+`","password":"newpass1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_token", decodeBody(t, w)["error"])
}

func TestVerifyOTPLockout(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.InsertUser(context.Background(), &core.UserAccount{Email: "a@x.com", PasswordHash: "h", Role: "user"}))
	w := env.do(http.MethodPost, "/auth/forgot", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	bad := "000000"
	if env.mail.match(t, otpCodeRe) == bad {
		bad = "111111"
	}

	for i := 0; i < 4; i++ {
		w = env.do(http.MethodPost, "/auth/verify-otp", `{"email":"a@x.com","otp":"`+bad+`"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.JSONEq(t, `{"error":"invalid_otp","message":"Invalid OTP"}`, w.Body.String())
	}
	w = env.do(http.MethodPost, "/auth/verify-otp", `{"email":"a@x.com","otp":"`+bad+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "otp_locked", decodeBody(t, w)["error"])
	require.Empty(t, env.store.OTPs())
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAPIHandlerNotInitialized(t *testing.T) {
	var s *Service
	w := httptest.NewRecorder()
	s.APIHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
