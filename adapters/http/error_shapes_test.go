package authhttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-rails/recoverykit/core"
)

func TestErrorShape_MalformedBodies(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/auth/register-request", "/auth/forgot", "/auth/verify-otp", "/auth/reset-password"} {
		for _, body := range []string{`{`, `{"unknown":1}`, `{} {}`} {
			w := env.do(http.MethodPost, path, body)
			require.Equal(t, http.StatusBadRequest, w.Code, "%s %s", path, body)
			require.Equal(t, "application/json", strings.TrimSpace(strings.Split(w.Header().Get("Content-Type"), ";")[0]))
			require.JSONEq(t, `{"error":"invalid_request"}`, w.Body.String())
		}
	}
}

func TestErrorShape_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/auth/register-request", `{"name":"","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"name_required","message":"Name is required"}`, w.Body.String())

	w = env.do(http.MethodPost, "/auth/register-request", `{"name":"A","email":"a@x.com","password":"123"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "password_too_short", decodeBody(t, w)["error"])

	w = env.do(http.MethodPost, "/auth/reset-password", `{"token":"","password":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "missing_fields", decodeBody(t, w)["error"])

	w = env.do(http.MethodPost, "/auth/verify-otp", `{"email":"a@x.com","otp":"123456"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_otp", decodeBody(t, w)["error"])
}

func TestErrorShape_PendingConflict(t *testing.T) {
	env := newTestEnv(t)
	body := `{"name":"A","email":"a@x.com","password":"secret1"}`
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/auth/register-request", body).Code)

	w := env.do(http.MethodPost, "/auth/register-request", body)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "pending_confirmation", decodeBody(t, w)["error"])
}

type brokenStore struct{ core.Store }

func (brokenStore) FindUserByEmail(context.Context, string) (*core.UserAccount, error) {
	return nil, errors.New(`ERROR: relation "users" does not exist`)
}

func TestErrorShape_StoreFailureIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.s.WithStore(brokenStore{env.store})

	w := env.do(http.MethodPost, "/auth/forgot", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"store_error","message":"Internal server error"}`, w.Body.String())
	require.NotContains(t, w.Body.String(), "relation")
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusConflict, StatusFor(core.ErrAlreadyActivated))
	require.Equal(t, http.StatusBadRequest, StatusFor(core.ErrTokenExpired))
	require.Equal(t, http.StatusBadRequest, StatusFor(core.ErrOTPLocked))
	require.Equal(t, http.StatusInternalServerError, StatusFor(core.ErrEmailDelivery))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
