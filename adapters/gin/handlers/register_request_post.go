package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/recoverykit/adapters/ginutil"
	core "github.com/open-rails/recoverykit/core"
)

func HandleRegisterRequestPOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	type registerReq struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLRegisterRequest) {
			ginutil.TooMany(c)
			return
		}
		var req registerReq
		if err := ginutil.BindJSON(c, &req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		msg, err := svc.RequestRegistration(c.Request.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			ginutil.CoreErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}
