package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ChatContextKey = "chat_context_id"

// ChatContextMiddleware 给每个浏览器分配一个长期 cookie，作为客户端存储的作用域。
// 同一浏览器的多个标签页共享同一个 cookie，也就共享访客身份。
func ChatContextMiddleware(cookieName string, maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		contextID, err := c.Cookie(cookieName)
		if err != nil || uuid.Validate(contextID) != nil {
			contextID = uuid.NewString()
			secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, contextID, maxAgeSeconds, "/", "", secure, true)
		}
		c.Set(ChatContextKey, contextID)
		c.Next()
	}
}
