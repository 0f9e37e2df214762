package authhttp

import (
	"net/http"
)

// APIHandler returns a handler that serves the recovery routes under /auth/*
// plus GET /healthz. It is intended to be mounted under the host's mux.
func (s *Service) APIHandler() http.Handler {
	if s == nil || s.svc == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { serverErr(w, "recoverykit_not_initialized") })
	}

	mux := http.NewServeMux()

	// Account activation
	mux.Handle("POST /auth/register-request", http.HandlerFunc(s.handleRegisterRequestPOST))
	mux.Handle("GET /auth/confirm", http.HandlerFunc(s.handleConfirmGET))

	// Password recovery
	mux.Handle("POST /auth/forgot", http.HandlerFunc(s.handleForgotPOST))
	mux.Handle("POST /auth/verify-otp", http.HandlerFunc(s.handleVerifyOTPPOST))
	mux.Handle("POST /auth/reset-password", http.HandlerFunc(s.handleResetPasswordPOST))

	if len(s.adminSecret) > 0 {
		mux.Handle("POST /auth/admin/sweep", s.adminRequired(http.HandlerFunc(s.handleAdminSweepPOST)))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return s.requestLogger(s.withRequestMeta(mux))
}
