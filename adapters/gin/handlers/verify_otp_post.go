package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/recoverykit/adapters/ginutil"
	core "github.com/open-rails/recoverykit/core"
)

func HandleVerifyOTPPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type verifyReq struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLVerifyOTP) {
			ginutil.TooMany(c)
			return
		}
		var req verifyReq
		if err := ginutil.BindJSON(c, &req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		res, err := svc.VerifyPasswordOTP(c.Request.Context(), req.Email, req.OTP)
		if err != nil {
			ginutil.CoreErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"redirect": res.Redirect})
	}
}
