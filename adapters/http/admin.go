package authhttp

import (
	"net/http"
)

func (s *Service) handleAdminSweepPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminSweep) {
		tooMany(w)
		return
	}
	res, err := s.svc.SweepExpired(r.Context())
	if err != nil {
		s.writeCoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
