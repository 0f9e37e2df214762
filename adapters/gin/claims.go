package authgin

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// Claims is a typed view of the admin token attached by AdminRequired.
type Claims struct {
	Subject string
	Roles   []string
}

func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type claimsCtxKey struct{}

// SetClaims returns a child context with claims attached.
func SetClaims(ctx context.Context, cl Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, cl)
}

// FromContext extracts claims from a standard context.
func FromContext(ctx context.Context) (Claims, bool) {
	cl, ok := ctx.Value(claimsCtxKey{}).(Claims)
	return cl, ok
}

// ClaimsFromGin returns claims from the Gin context if present.
func ClaimsFromGin(c *gin.Context) (Claims, bool) {
	if v, ok := c.Get("recoverykit.claims"); ok {
		if cl, ok := v.(Claims); ok {
			return cl, true
		}
	}
	return FromContext(c.Request.Context())
}
