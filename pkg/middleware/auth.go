package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/diagramsync/internal/identity"
)

// Context keys set by AuthMiddleware.
const (
	ContextIdentity = "identity"
	ContextToken    = "token"
)

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, ok := identity.BearerToken(auth)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		id, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextIdentity, id)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok && id.ID != ""
}

// TokenFrom returns the raw bearer token stored by AuthMiddleware.
func TokenFrom(c *gin.Context) string {
	return c.GetString(ContextToken)
}

// limitKey prefers the authenticated subject (NAT-friendly), else the client IP.
func limitKey(c *gin.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return "sub:" + id.ID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
