package authgin

import (
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/open-rails/recoverykit/adapters/ginutil"
)

// AdminRole is the role required by AdminRequired.
const AdminRole = "admin"

// AdminRequired validates an HS256 bearer token signed with secret, requires
// exp and the admin role, and attaches Claims to the context.
func AdminRequired(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	keyfunc := func(*jwt.Token) (any, error) { return secret, nil }
	return func(c *gin.Context) {
		tokenStr := ginutil.BearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			ginutil.Unauthorized(c, "missing_token")
			return
		}
		mc := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenStr, mc, keyfunc)
		if err != nil || !token.Valid {
			ginutil.Unauthorized(c, "invalid_token")
			return
		}
		cl := claimsFromMap(mc)
		if !cl.HasRole(AdminRole) {
			ginutil.Forbidden(c, "forbidden")
			return
		}
		c.Set("recoverykit.claims", cl)
		c.Request = c.Request.WithContext(SetClaims(c.Request.Context(), cl))
		c.Next()
	}
}

func claimsFromMap(mc jwt.MapClaims) Claims {
	var cl Claims
	cl.Subject, _ = mc["sub"].(string)
	if r, _ := mc["role"].(string); r != "" {
		cl.Roles = append(cl.Roles, r)
	}
	switch rs := mc["roles"].(type) {
	case []any:
		for _, v := range rs {
			if s, ok := v.(string); ok {
				cl.Roles = append(cl.Roles, s)
			}
		}
	case []string:
		cl.Roles = append(cl.Roles, rs...)
	}
	return cl
}
