package authhttp

import (
	"encoding/json"
	"net/http"

	"github.com/open-rails/recoverykit/core"
)

type errResp struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errResp{Error: code})
}

func badRequest(w http.ResponseWriter, code string)   { sendErr(w, http.StatusBadRequest, code) }
func unauthorized(w http.ResponseWriter, code string) { sendErr(w, http.StatusUnauthorized, code) }
func forbidden(w http.ResponseWriter, code string)    { sendErr(w, http.StatusForbidden, code) }
func tooMany(w http.ResponseWriter)                   { sendErr(w, http.StatusTooManyRequests, "rate_limited") }
func serverErr(w http.ResponseWriter, code string)    { sendErr(w, http.StatusInternalServerError, code) }

// StatusFor maps a core error to its HTTP status.
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation, core.KindInvalid, core.KindExpired, core.KindLocked:
		return http.StatusBadRequest
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeCoreErr renders err as {error, message}. Server errors are logged with
// their detail and reported generically.
func (s *Service) writeCoreErr(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger().WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, errResp{Error: core.Code(err), Message: core.ErrMessage(err)})
}
