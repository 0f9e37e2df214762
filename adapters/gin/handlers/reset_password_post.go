package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/recoverykit/adapters/ginutil"
	core "github.com/open-rails/recoverykit/core"
)

func HandleResetPasswordPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type resetReq struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLResetPassword) {
			ginutil.TooMany(c)
			return
		}
		var req resetReq
		if err := ginutil.BindJSON(c, &req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		if strings.TrimSpace(req.Token) == "" || req.Password == "" {
			ginutil.CoreErr(c, core.ErrMissingFields)
			return
		}
		msg, err := svc.ResetPassword(c.Request.Context(), req.Token, req.Password)
		if err != nil {
			ginutil.CoreErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}
