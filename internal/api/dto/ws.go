package dto

import "Horizon/internal/model"

// WebSocket 帧类型
const (
	FrameInit        = "init"
	FrameSend        = "send"
	FrameDetails     = "details"
	FrameSelect      = "select"
	FrameClose       = "close"
	FrameRefresh     = "refresh"
	FrameMarkRead    = "mark_read"
	FrameMarkAllRead = "mark_all_read"

	FrameState = "state"
	FrameError = "error"
)

// ClientFrame 客户端发来的帧，按 Type 取用对应字段
type ClientFrame struct {
	Type      string                `json:"type"`
	Message   string                `json:"message,omitempty"`
	Name      string                `json:"name,omitempty"`
	Email     string                `json:"email,omitempty"`
	Phone     string                `json:"phone,omitempty"`
	SessionID string                `json:"sessionId,omitempty"`
	Details   *model.VisitorDetails `json:"details,omitempty"`
}

// ServerFrame 推送给客户端的帧
type ServerFrame struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// AdminInboxState 管理后台收件箱快照
type AdminInboxState struct {
	Sessions        []*model.ChatSession `json:"sessions"`
	SelectedSession *model.ChatSession   `json:"selectedSession"`
	Messages        []*model.ChatMessage `json:"messages"`
	UnreadCounts    map[string]int       `json:"unreadCounts"`
	LastMessages    map[string]string    `json:"lastMessages"`
	TotalUnread     int                  `json:"totalUnread"`
	Loading         bool                 `json:"loading"`
	Error           string               `json:"error,omitempty"`
}
