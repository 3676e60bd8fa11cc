package httpx

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
)

const actorKey = "actor"

// APIKeyActor is the identity of callers authenticated with X-API-KEY.
var APIKeyActor = auth.Actor{UserID: "api-key", Role: auth.RoleAdmin}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate requires a valid bearer token and stores the actor on the context.
func Authenticate(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is missing", "code": "unauthorized"})
			return
		}
		actor, err := auth.ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireAdmin accepts an admin bearer token, or an X-API-KEY matching the
// bcrypt hash when one is configured.
func RequireAdmin(secret, apiKeyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-KEY"); key != "" && apiKeyHash != "" {
			if bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(key)) != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key", "code": "unauthorized"})
				return
			}
			c.Set(actorKey, APIKeyActor)
			c.Next()
			return
		}
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is missing", "code": "unauthorized"})
			return
		}
		actor, err := auth.ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
			return
		}
		if !actor.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required", "code": "forbidden"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// Actor returns the caller stored by Authenticate or RequireAdmin.
func Actor(c *gin.Context) auth.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(auth.Actor); ok {
			return a
		}
	}
	return auth.Actor{}
}
