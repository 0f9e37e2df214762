package authhttp

import (
	"net/http"
)

func (s *Service) handleRegisterRequestPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLRegisterRequest) {
		tooMany(w)
		return
	}
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	msg, err := s.svc.RequestRegistration(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeCoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// handleConfirmGET always answers with a redirect to the activation page.
func (s *Service) handleConfirmGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLConfirm) {
		tooMany(w)
		return
	}
	out := s.svc.ConfirmRegistration(r.Context(), r.URL.Query().Get("token"))
	http.Redirect(w, r, s.svc.RedirectURL(out), http.StatusSeeOther)
}
