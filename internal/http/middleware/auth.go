// README: Firebase bearer-token auth; the verified UID becomes the actor of every write.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"freightquote/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

// Auth rejects requests without a valid "Authorization: Bearer <id token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, token.Role())
		c.Next()
	}
}

// Anonymous marks every request as coming from actor. Used when auth is disabled.
func Anonymous(actor string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxUID, actor)
		c.Next()
	}
}

// CallerUID returns the authenticated UID, or "".
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// CallerRole returns the "role" custom claim of the caller, or "".
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// RequireRole allows only callers whose role claim is one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
