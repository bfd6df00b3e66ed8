package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
	"github.com/noah-isme/hostel-noc-api/pkg/response"
)

// SelfParam is the path parameter compared against the caller id for the SELF rule.
const SelfParam = "studentId"

// RBAC enforces role-based access control for routes. "SELF" admits a caller whose id matches
// the studentId path parameter. Allowing ADMIN also admits SUPERADMIN.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{})
	for _, a := range allowed {
		if a == "SELF" {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}
	if _, ok := allowedRoles[models.RoleAdmin]; ok {
		allowedRoles[models.RoleSuperAdmin] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param(SelfParam); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
