package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/response"
)

// RequireRole allows only tokens carrying one of roles. Anonymous tokens get
// 401 so clients prompt for sign-in; other roles get 403.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		switch {
		case allowed[role]:
			c.Next()
			return
		case role == "" || role == auth.RoleAnon:
			response.Unauthorized(c, "sign in required")
		default:
			response.Forbidden(c, "insufficient permissions")
		}
		c.Abort()
	}
}
