package model

import (
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// ChatSession 访客会话
type ChatSession struct {
	ID                 string        `bson:"-" json:"id" validate:"required"`
	VisitorID          string        `bson:"visitor_id" json:"visitorId" validate:"required,max=128"`
	VisitorName        string        `bson:"visitor_name,omitempty" json:"visitorName,omitempty" validate:"max=120"`
	VisitorEmail       string        `bson:"visitor_email,omitempty" json:"visitorEmail,omitempty" validate:"omitempty,email"`
	VisitorPhone       string        `bson:"visitor_phone,omitempty" json:"visitorPhone,omitempty" validate:"max=32"`
	Status             SessionStatus `bson:"status" json:"status" validate:"oneof=active closed"`
	LastMessagePreview string        `bson:"last_message_preview,omitempty" json:"lastMessagePreview,omitempty"`
	LastMessageAt      time.Time     `bson:"last_message_at" json:"lastMessageAt"`
	CreatedAt          time.Time     `bson:"created_at" json:"createdAt" validate:"required"`
}

// VisitorDetails 访客联系方式，全部可选
type VisitorDetails struct {
	Name  string `json:"name,omitempty" validate:"max=120"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"max=32"`
}

func (d VisitorDetails) Normalize() VisitorDetails {
	return VisitorDetails{
		Name:  strings.TrimSpace(d.Name),
		Email: strings.TrimSpace(d.Email),
		Phone: strings.TrimSpace(d.Phone),
	}
}

func (d VisitorDetails) IsEmpty() bool {
	n := d.Normalize()
	return n.Name == "" && n.Email == "" && n.Phone == ""
}

func (s *ChatSession) IsActive() bool {
	return s != nil && s.Status == SessionActive
}

// Clone 拷贝一份，避免锁外共享指针
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// NewChatSession 构造新的 active 会话，ID 由存储层分配
func NewChatSession(visitorID string, details *VisitorDetails, now time.Time) *ChatSession {
	s := &ChatSession{
		VisitorID:     strings.TrimSpace(visitorID),
		Status:        SessionActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if details != nil {
		d := details.Normalize()
		s.VisitorName = d.Name
		s.VisitorEmail = d.Email
		s.VisitorPhone = d.Phone
	}
	return s
}
