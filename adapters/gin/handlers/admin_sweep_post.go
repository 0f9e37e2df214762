package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/recoverykit/adapters/ginutil"
	core "github.com/open-rails/recoverykit/core"
)

// HandleAdminSweepPOST removes expired pending registrations, OTPs and reset
// tokens on demand. Mount behind an admin gate.
func HandleAdminSweepPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminSweep) {
			ginutil.TooMany(c)
			return
		}
		res, err := svc.SweepExpired(c.Request.Context())
		if err != nil {
			ginutil.CoreErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
