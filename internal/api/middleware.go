package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuth rejects requests whose Authorization header does not carry token.
func BearerAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		got, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
