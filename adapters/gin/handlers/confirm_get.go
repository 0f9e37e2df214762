package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/recoverykit/adapters/ginutil"
	core "github.com/open-rails/recoverykit/core"
)

// HandleConfirmGET activates a pending registration and always redirects to
// the activation page with the outcome in the query string.
func HandleConfirmGET(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLConfirm) {
			ginutil.TooMany(c)
			return
		}
		out := svc.ConfirmRegistration(c.Request.Context(), c.Query("token"))
		c.Redirect(http.StatusSeeOther, svc.RedirectURL(out))
	}
}
