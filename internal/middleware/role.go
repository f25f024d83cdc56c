package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/pkg/response"
)

// Role returns the caller's role set by JWT.
func Role(c *gin.Context) (models.Role, bool) {
	v, ok := c.Get(ContextUserRole)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return models.Role(s), ok
}

// RequireRole lets through callers holding one of roles. Must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := Role(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !slices.Contains(roles, role) {
			response.Forbidden(c, "insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}
