package api

import (
	"Horizon/internal/api/config"
	"Horizon/internal/api/middleware"
	"Horizon/internal/pkg/consts"
	"Horizon/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, checker middleware.TokenChecker, cfg *config.Config) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	logger.SetupGin(r)

	chatContext := middleware.ChatContextMiddleware(cfg.Chat.ContextCookie, int(cfg.Chat.StorageTTL().Seconds()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		chatGroup := apiGroup.Group("/chat")
		chatGroup.Use(chatContext)
		{
			chatGroup.GET("/ws", group.ChatWSHandler.VisitorConnect)
		}

		adminGroup := apiGroup.Group("/admin")
		{
			// 无需登录即可访问的接口
			adminGroup.POST("/login", group.AdminHandler.Login)

			authGroup := adminGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware(checker), middleware.CheckRoles(consts.ChatRoleAdmin))
			{
				authGroup.POST("/logout", group.AdminHandler.Logout)
				authGroup.GET("/me", group.AdminHandler.Me)

				adminChat := authGroup.Group("/chat")
				{
					adminChat.GET("/ws", chatContext, group.ChatWSHandler.AdminConnect)
					adminChat.GET("/sessions", group.ChatAdminHandler.ListSessions)
					adminChat.GET("/sessions/:id/messages", group.ChatAdminHandler.GetMessages)
					adminChat.POST("/sessions/:id/close", group.ChatAdminHandler.CloseSession)
					adminChat.POST("/sessions/:id/transcript", group.ChatAdminHandler.ExportTranscript)
					adminChat.GET("/search", group.ChatAdminHandler.SearchMessages)
				}
			}
		}
	}

	return r
}
