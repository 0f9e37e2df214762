package ginutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/open-rails/recoverykit/core"
)

// RateLimiter is a minimal interface used by adapters.
type RateLimiter interface {
	AllowNamed(bucket string, key string) (bool, error)
}

// Bucket names used by recovery endpoints.
const (
	RLRegisterRequest = "register"
	RLConfirm         = "confirm"
	RLForgot          = "forgot"
	RLVerifyOTP       = "verify"
	RLResetPassword   = "reset"
	RLAdminSweep      = "admin"
)

// AllowNamed applies a per-IP limit using the provided bucket name.
// It fails open on limiter error.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ip := c.ClientIP()
	if ip == "" {
		return true
	}
	key := "recovery:" + bucket + ":ip:" + ip
	ok, err := rl.AllowNamed(bucket, key)
	if err != nil {
		log.WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

// Error helpers
func SendErr(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
func BadRequest(c *gin.Context, code string)   { SendErr(c, http.StatusBadRequest, code) }
func Unauthorized(c *gin.Context, code string) { SendErr(c, http.StatusUnauthorized, code) }
func Forbidden(c *gin.Context, code string)    { SendErr(c, http.StatusForbidden, code) }
func TooMany(c *gin.Context)                   { SendErr(c, http.StatusTooManyRequests, "rate_limited") }
func ServerErr(c *gin.Context, code string)    { SendErr(c, http.StatusInternalServerError, code) }

// logServerErr records the underlying error with request context. Clients only
// ever see the generic code.
func logServerErr(c *gin.Context, code string, err error, message string) {
	entry := log.WithContext(c.Request.Context()).WithFields(log.Fields{
		"code":   code,
		"path":   c.FullPath(),
		"method": c.Request.Method,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if strings.TrimSpace(message) == "" {
		message = "recoverykit server error"
	}
	entry.Error(message)
}

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

// CoreErr renders a core error as {error, message}. Server errors are
// logged and reported generically.
func CoreErr(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logServerErr(c, core.Code(err), err, "request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": core.Code(err), "message": core.ErrMessage(err)})
}

const maxBodyBytes = 1 << 16

// BindJSON decodes a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func BindJSON(c *gin.Context, dst any) error {
	if c.Request == nil || c.Request.Body == nil {
		return errors.New("missing_body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid_json")
	}
	return nil
}

// RequestMeta stores the client IP and user agent on the request context so
// recovery events carry them.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := core.WithRequestMeta(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// BearerToken extracts a Bearer token from an Authorization header value.
func BearerToken(authorization string) string {
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
