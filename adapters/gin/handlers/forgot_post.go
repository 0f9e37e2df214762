package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/recoverykit/adapters/ginutil"
	core "github.com/open-rails/recoverykit/core"
)

func HandleForgotPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type forgotReq struct {
		Email string `json:"email"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLForgot) {
			ginutil.TooMany(c)
			return
		}
		var req forgotReq
		if err := ginutil.BindJSON(c, &req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		res, err := svc.RequestPasswordOTP(c.Request.Context(), req.Email)
		if err != nil {
			ginutil.CoreErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
