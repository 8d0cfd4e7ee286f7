package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionKey is the gin context key holding the caller's guest session id.
const SessionKey = "sessionId"

// TokenParser verifies a signed session token and returns its session id.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// SessionMiddleware resolves the guest session from a Bearer session token or,
// failing that, from the sessionId header.
func SessionMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				c.JSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"message": "Invalid authorization header format",
				})
				c.Abort()
				return
			}

			sessionID, err := tokens.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"message": "Invalid session token",
				})
				c.Abort()
				return
			}
			c.Set(SessionKey, sessionID)
			c.Next()
			return
		}

		sessionID := strings.TrimSpace(c.GetHeader("sessionId"))
		if sessionID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "sessionId header or session token required",
			})
			c.Abort()
			return
		}
		c.Set(SessionKey, sessionID)
		c.Next()
	}
}

// SessionID returns the session resolved by SessionMiddleware.
func SessionID(c *gin.Context) string {
	return c.GetString(SessionKey)
}
