package middleware

import (
	"Horizon/internal/pkg/response"
	"Horizon/internal/pkg/security"
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	AdminIDKey     = "admin_id"
	AdminNameKey   = "admin_name"
	RolesKey       = "roles"
	AccessTokenKey = "access_token"
)

// TokenChecker 查询 token 是否已登出
type TokenChecker interface {
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware 负责验证 JWT 并将后台账号身份注入 Context。
// WebSocket 握手无法带 Header，允许用 ?token= 传递。
func AuthMiddleware(checker TokenChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.Fail(c, response.Unauthorized, "missing or malformed token")
			c.Abort()
			return
		}

		revoked, err := checker.IsTokenRevoked(c.Request.Context(), tokenString)
		if err != nil {
			response.Fail(c, response.Unauthorized, "missing or malformed token")
			c.Abort()
			return
		}
		if revoked {
			response.Fail(c, response.Unauthorized, "token is invalid or expired")
			c.Abort()
			return
		}

		claims, err := security.ValidateToken(tokenString)
		if err != nil {
			response.Fail(c, response.Unauthorized, "token is invalid or expired")
			c.Abort()
			return
		}

		c.Set(AdminIDKey, claims.AdminID)
		c.Set(AdminNameKey, claims.DisplayName)
		c.Set(RolesKey, claims.Roles)
		c.Set(AccessTokenKey, tokenString)

		newCtx := context.WithValue(c.Request.Context(), AdminIDKey, claims.AdminID)
		c.Request = c.Request.WithContext(newCtx)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.Query("token")
}
