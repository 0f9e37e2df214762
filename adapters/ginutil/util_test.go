package ginutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/open-rails/recoverykit/core"
)

func init() { gin.SetMode(gin.TestMode) }

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) AllowNamed(bucket, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func testContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/forgot", nil)
	c.Request.RemoteAddr = "203.0.113.4:5000"
	return c, w
}

func TestAllowNamed(t *testing.T) {
	c, _ := testContext(t)
	require.True(t, AllowNamed(c, nil, RLForgot))

	deny := &stubLimiter{allow: false}
	require.False(t, AllowNamed(c, deny, RLForgot))
	require.Equal(t, []string{"recovery:forgot:ip:203.0.113.4"}, deny.keys)

	broken := &stubLimiter{err: errors.New("redis down")}
	require.True(t, AllowNamed(c, broken, RLForgot))
}

func TestCoreErr(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{core.ErrOTPInvalid, http.StatusBadRequest, `{"error":"invalid_otp","message":"Invalid OTP"}`},
		{core.ErrPendingConfirmation, http.StatusConflict, `{"error":"pending_confirmation","message":"Registration already pending confirmation, check your email"}`},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, `{"error":"server_error","message":"Internal server error"}`},
	}
	for _, tc := range cases {
		c, w := testContext(t)
		CoreErr(c, tc.err)
		require.Equal(t, tc.status, w.Code)
		require.JSONEq(t, tc.body, w.Body.String())
		require.True(t, c.IsAborted())
	}
}

func TestErrorHelpers(t *testing.T) {
	c, w := testContext(t)
	TooMany(c)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.JSONEq(t, `{"error":"rate_limited"}`, w.Body.String())

	c, w = testContext(t)
	ServerErr(c, "store_unavailable")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"store_unavailable"}`, w.Body.String())
}

func TestCoreErrLogsServerErrors(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	c, _ := testContext(t)
	CoreErr(c, core.ErrOTPInvalid)
	require.Empty(t, hook.AllEntries())

	c, _ = testContext(t)
	CoreErr(c, errors.New("pq: connection refused"))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "request failed", entry.Message)
	require.Equal(t, "server_error", entry.Data["code"])
	require.Equal(t, http.MethodPost, entry.Data["method"])
	require.EqualError(t, entry.Data[logrus.ErrorKey].(error), "pq: connection refused")
}

func TestBindJSON(t *testing.T) {
	type req struct {
		Email string `json:"email"`
	}
	bind := func(body string) (req, error) {
		c, _ := testContext(t)
		c.Request = httptest.NewRequest(http.MethodPost, "/auth/forgot", strings.NewReader(body))
		var r req
		return r, BindJSON(c, &r)
	}

	r, err := bind(`{"email":"a@x.com"}`)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", r.Email)

	_, err = bind(`{"email":"a@x.com","admin":true}`)
	require.Error(t, err)
	_, err = bind(`{"email":"a@x.com"} {}`)
	require.Error(t, err)
	_, err = bind(``)
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer  abc"))
	require.Equal(t, "", BearerToken("Basic abc"))
	require.Equal(t, "", BearerToken(""))
}
