package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAPIKeyMiddleware guards the API surface with a shared admin key
// sent as X-API-Key. An empty configured key disables the check, which is
// the local development mode.
func RequireAPIKeyMiddleware(apiKey string) gin.HandlerFunc {
	apiKey = strings.TrimSpace(apiKey)

	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		// Keep infra endpoints open.
		if p == "/healthz" || p == "/readyz" {
			c.Next()
			return
		}
		if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/swagger") {
			got := strings.TrimSpace(c.GetHeader("X-API-Key"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid api key"})
				return
			}
		}
		c.Next()
	}
}
