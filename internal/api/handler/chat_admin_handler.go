package handler

import (
	"Horizon/internal/api/dto"
	"Horizon/internal/model"
	"Horizon/internal/pkg/response"
	"Horizon/internal/pkg/util"
	"Horizon/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatAdminHandler 管理后台的会话 REST 接口
type ChatAdminHandler struct {
	chatSvc       service.ChatService
	transcriptSvc service.TranscriptService
}

func NewChatAdminHandler(chatSvc service.ChatService, transcriptSvc service.TranscriptService) *ChatAdminHandler {
	return &ChatAdminHandler{chatSvc: chatSvc, transcriptSvc: transcriptSvc}
}

// ListSessions GET /sessions?status=active|closed
func (s *ChatAdminHandler) ListSessions(c *gin.Context) {
	var query dto.ChatSessionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, err)
		return
	}
	if err := util.ValidateDTO(&query); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}
	sessions, err := s.chatSvc.ListSessions(c.Request.Context(), model.SessionStatus(query.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sessions)
}

// GetMessages GET /sessions/:id/messages
func (s *ChatAdminHandler) GetMessages(c *gin.Context) {
	messages, err := s.chatSvc.GetMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, messages)
}

// CloseSession POST /sessions/:id/close
func (s *ChatAdminHandler) CloseSession(c *gin.Context) {
	if err := s.chatSvc.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SearchMessages GET /search?q=&sessionId=&from=&size=
func (s *ChatAdminHandler) SearchMessages(c *gin.Context) {
	var query dto.ChatSearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, err)
		return
	}
	if err := util.ValidateDTO(&query); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}
	hits, err := s.chatSvc.SearchMessages(c.Request.Context(), &query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, hits)
}

// ExportTranscript POST /sessions/:id/transcript
func (s *ChatAdminHandler) ExportTranscript(c *gin.Context) {
	res, err := s.transcriptSvc.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
