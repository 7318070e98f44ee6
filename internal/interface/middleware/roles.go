package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/OlivMer765/auth-service/pkg/response"
)

// RoleLookup resolves the role names held by a user. Wired to the
// application service so the middleware stays free of storage concerns.
type RoleLookup func(ctx context.Context, userID string) ([]string, error)

// RequireRole gates a route group to users holding at least one of the named
// roles. Must run after Auth.
func RequireRole(lookup RoleLookup, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(CtxUserIDKey)
		if uid == "" {
			response.Error[any](c, http.StatusUnauthorized, "not authenticated", nil)
			c.Abort()
			return
		}
		held, err := lookup(c.Request.Context(), uid)
		if err != nil {
			response.Error[any](c, http.StatusInternalServerError, "role lookup failed", nil)
			c.Abort()
			return
		}
		for _, want := range roles {
			for _, h := range held {
				if strings.EqualFold(h, want) {
					c.Next()
					return
				}
			}
		}
		response.Error[any](c, http.StatusForbidden, "insufficient role", nil)
		c.Abort()
	}
}
