package es

import (
	"Horizon/internal/model"
	"time"
)

// ChatMessageES 写入 ES 的聊天记录文档
type ChatMessageES struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Message     string    `json:"message"`
	SenderName  string    `json:"sender_name"`
	IsFromAdmin bool      `json:"is_from_admin"`
	SenderEmail string    `json:"sender_email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewChatMessageES(m *model.ChatMessage) *ChatMessageES {
	return &ChatMessageES{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Message:     m.Message,
		SenderName:  m.SenderName,
		IsFromAdmin: m.IsFromAdmin,
		SenderEmail: m.SenderEmail,
		CreatedAt:   m.CreatedAt,
	}
}
