package api

import "Horizon/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	AdminHandler     *handler.AdminHandler
	ChatAdminHandler *handler.ChatAdminHandler
	ChatWSHandler    *handler.ChatWSHandler
}
