package middleware

import (
	"Horizon/internal/pkg/response"
	log "log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

// CheckRoles 当前管理员至少拥有一个指定角色才放行, 角色名不区分大小写
func CheckRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles := c.GetStringSlice(RolesKey)
		if !hasAnyRole(roles, requiredRoles) {
			log.WarnContext(c.Request.Context(), "admin role denied",
				"adminID", c.GetUint64(AdminIDKey), "roles", roles, "required", requiredRoles)
			response.Fail(c, response.Forbidden, "forbidden: insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}

func hasAnyRole(roles, required []string) bool {
	for _, want := range required {
		for _, role := range roles {
			if strings.EqualFold(want, role) {
				return true
			}
		}
	}
	return false
}
