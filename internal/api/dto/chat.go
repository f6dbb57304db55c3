package dto

import (
	"Horizon/internal/model"
	"time"
)

// ChatSessionDTO 会话列表项
type ChatSessionDTO struct {
	ID                 string              `json:"id"`
	VisitorID          string              `json:"visitorId"`
	VisitorName        string              `json:"visitorName,omitempty"`
	VisitorEmail       string              `json:"visitorEmail,omitempty"`
	VisitorPhone       string              `json:"visitorPhone,omitempty"`
	Status             model.SessionStatus `json:"status"`
	LastMessagePreview string              `json:"lastMessagePreview,omitempty"`
	LastMessageAt      time.Time           `json:"lastMessageAt"`
	CreatedAt          time.Time           `json:"createdAt"`
}

// ChatMessageDTO 会话消息
type ChatMessageDTO struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Message     string    `json:"message"`
	SenderName  string    `json:"senderName"`
	IsFromAdmin bool      `json:"isFromAdmin"`
	SenderEmail string    `json:"senderEmail,omitempty"`
	SenderPhone string    `json:"senderPhone,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChatSessionQuery 会话列表筛选
type ChatSessionQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=active closed"`
}

// ChatSearchQuery 消息全文检索
type ChatSearchQuery struct {
	Keyword   string `form:"q" binding:"required" validate:"min=1,max=100"`
	SessionID string `form:"sessionId"`
	From      int    `form:"from" validate:"min=0"`
	Size      int    `form:"size" validate:"min=0,max=100"`
}

// TranscriptDTO 导出的聊天记录
type TranscriptDTO struct {
	ObjectKey string    `json:"objectKey"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
