package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrincipalHeader is the header an upstream authentication layer sets
// with the already-verified user id before a request reaches the
// authorize endpoint. The core never authenticates users itself; it
// only reads this opaque principal.
const PrincipalHeader = "X-Principal-User-ID"

const principalContextKey = "principal_user_id"

// RequirePrincipal rejects requests missing PrincipalHeader with 401
// and stores the user id in the gin context for handlers to read via
// Principal.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(PrincipalHeader)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "missing authenticated principal",
			})
			c.Abort()
			return
		}
		c.Set(principalContextKey, userID)
		c.Next()
	}
}

// Principal returns the authenticated user id set by RequirePrincipal.
func Principal(c *gin.Context) string {
	v, _ := c.Get(principalContextKey)
	userID, _ := v.(string)
	return userID
}
