package model

import (
	"sort"
	"strings"
	"time"
)

// ChatMessage 会话消息，创建后不可变
type ChatMessage struct {
	ID          string    `bson:"-" json:"id" validate:"required"`
	SessionID   string    `bson:"session_id" json:"sessionId" validate:"required"`
	Message     string    `bson:"message" json:"message" validate:"required,max=4000"`
	SenderName  string    `bson:"sender_name" json:"senderName" validate:"required,max=120"`
	IsFromAdmin bool      `bson:"is_from_admin" json:"isFromAdmin"`
	SenderEmail string    `bson:"sender_email,omitempty" json:"senderEmail,omitempty" validate:"omitempty,email"`
	SenderPhone string    `bson:"sender_phone,omitempty" json:"senderPhone,omitempty" validate:"max=32"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt" validate:"required"`
}

// NewMessage 发送消息的入参
type NewMessage struct {
	SessionID   string `validate:"required"`
	Body        string `validate:"required,max=4000"`
	SenderName  string `validate:"required,max=120"`
	IsFromAdmin bool
	SenderEmail string `validate:"omitempty,email"`
	SenderPhone string `validate:"max=32"`
}

// Build 构造消息实体，管理员消息不携带联系方式
func (m NewMessage) Build(now time.Time) *ChatMessage {
	msg := &ChatMessage{
		SessionID:   m.SessionID,
		Message:     strings.TrimSpace(m.Body),
		SenderName:  strings.TrimSpace(m.SenderName),
		IsFromAdmin: m.IsFromAdmin,
		CreatedAt:   now,
	}
	if !m.IsFromAdmin {
		msg.SenderEmail = strings.TrimSpace(m.SenderEmail)
		msg.SenderPhone = strings.TrimSpace(m.SenderPhone)
	}
	return msg
}

// Before 按发送时间升序，时间相同按 ID
func (m *ChatMessage) Before(o *ChatMessage) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

func SortMessages(msgs []*ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}

// SortSessions 按最后活跃时间倒序
func SortSessions(sessions []*ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// Preview 会话列表中展示的最后一条消息摘要
func Preview(body string) string {
	const max = 120
	body = strings.TrimSpace(body)
	r := []rune(body)
	if len(r) <= max {
		return body
	}
	return string(r[:max]) + "…"
}
