package authhttp

import (
	"net/http"
	"strings"

	"github.com/open-rails/recoverykit/core"
)

// handleForgotPOST answers 200 for every well-formed request; the outcome is
// in the body.
func (s *Service) handleForgotPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLForgot) {
		tooMany(w)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	res, err := s.svc.RequestPasswordOTP(r.Context(), req.Email)
	if err != nil {
		s.writeCoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleVerifyOTPPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLVerifyOTP) {
		tooMany(w)
		return
	}
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	res, err := s.svc.VerifyPasswordOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		s.writeCoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"redirect": res.Redirect})
}

func (s *Service) handleResetPasswordPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLResetPassword) {
		tooMany(w)
		return
	}
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Token) == "" || req.Password == "" {
		s.writeCoreErr(w, r, core.ErrMissingFields)
		return
	}
	msg, err := s.svc.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		s.writeCoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}
