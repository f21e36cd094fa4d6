package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	"github.com/Elvismn/Scholalink3.0/internal/rbac"
	"github.com/Elvismn/Scholalink3.0/pkg/response"
)

// RequireRole admits callers whose role is one of roles. It must run after
// Authenticate.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := CurrentUser(c)
		if err := rbac.CheckRole(user, roles...); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}

// RequirePermission admits callers whose role grants permission.
func RequirePermission(permission models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := CurrentUser(c)
		if err := rbac.CheckPermission(user, permission); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}

// ForbidSelf rejects requests whose :param path value is the caller's own id.
func ForbidSelf(param, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Next()
			return
		}
		if err := rbac.EnsureNotSelf(user.ID, c.Param(param), message); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}
