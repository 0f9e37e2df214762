package authhttp

import (
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/recoverykit/core"
)

// AdminRole is the role claim value required on admin routes.
const AdminRole = "admin"

// adminRequired validates an HS256 bearer token signed with the admin secret
// and requires role=admin (or "admin" in a roles array).
func (s *Service) adminRequired(next http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	keyfunc := func(*jwt.Token) (any, error) { return s.adminSecret, nil }
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r.Header.Get("Authorization"))
		if tokenStr == "" {
			unauthorized(w, "missing_token")
			return
		}
		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenStr, claims, keyfunc)
		if err != nil || !token.Valid {
			unauthorized(w, "invalid_token")
			return
		}
		if !hasAdminRole(claims) {
			forbidden(w, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasAdminRole(claims jwt.MapClaims) bool {
	if role, _ := claims["role"].(string); role == AdminRole {
		return true
	}
	roles, _ := claims["roles"].([]any)
	for _, v := range roles {
		if s, _ := v.(string); s == AdminRole {
			return true
		}
	}
	return false
}

// withRequestMeta records the caller's IP and user agent on the request
// context for recovery events.
func (s *Service) withRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ""
		if s.clientIP != nil {
			ip = s.clientIP(r)
		}
		if ip == "" {
			ip = remoteIP(r)
		}
		ctx := core.WithRequestMeta(r.Context(), ip, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// requestLogger logs one line per request. Query strings are omitted since
// they can carry confirmation tokens.
func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		entry := s.logger().WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	})
}
