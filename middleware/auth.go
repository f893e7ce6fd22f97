package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"QChat/tools/security"
)

// CtxUserIDKey is where the verified identity lands for downstream handlers.
const CtxUserIDKey = "userID"

// Auth verifies the request identity and aborts with 401 before anything
// reaches the core. Accepts either the legacy "token" header or
// "Authorization: Bearer <token>".
func Auth(opts security.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("token"))
		if token == "" {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing token"})
			return
		}
		userID, err := security.Verify(opts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token"})
			return
		}
		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

// UserID reads the verified identity set by Auth.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
