package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

const actorKey = "actor"

// Middleware rejects requests without a valid bearer token and stores the
// token's actor on the context.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		parts := strings.Split(raw, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, err := ValidateToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// ActorFrom returns the actor set by Middleware.
func ActorFrom(c *gin.Context) (orders.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return orders.Actor{}, false
	}
	actor, ok := v.(orders.Actor)
	return actor, ok
}
