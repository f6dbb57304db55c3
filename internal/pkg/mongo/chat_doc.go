package mongo

import (
	"Horizon/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// chatSessionDoc chat_sessions 集合文档
type chatSessionDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	VisitorID          string             `bson:"visitor_id"`
	VisitorName        string             `bson:"visitor_name,omitempty"`
	VisitorEmail       string             `bson:"visitor_email,omitempty"`
	VisitorPhone       string             `bson:"visitor_phone,omitempty"`
	Status             string             `bson:"status"`
	LastMessagePreview string             `bson:"last_message_preview,omitempty"`
	LastMessageAt      time.Time          `bson:"last_message_at"`
	CreatedAt          time.Time          `bson:"created_at"`
	ClosedAt           *time.Time         `bson:"closed_at,omitempty"`
	TranscriptKey      string             `bson:"transcript_key,omitempty"` // 归档后的 MinIO 对象
}

// chatMessageDoc chat_messages 集合文档
type chatMessageDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	SessionID   string             `bson:"session_id"`
	Message     string             `bson:"message"`
	SenderName  string             `bson:"sender_name"`
	IsFromAdmin bool               `bson:"is_from_admin"`
	SenderEmail string             `bson:"sender_email,omitempty"`
	SenderPhone string             `bson:"sender_phone,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func newSessionDoc(s *model.ChatSession) *chatSessionDoc {
	return &chatSessionDoc{
		VisitorID:          s.VisitorID,
		VisitorName:        s.VisitorName,
		VisitorEmail:       s.VisitorEmail,
		VisitorPhone:       s.VisitorPhone,
		Status:             string(s.Status),
		LastMessagePreview: s.LastMessagePreview,
		LastMessageAt:      s.LastMessageAt,
		CreatedAt:          s.CreatedAt,
	}
}

// toModel 解码后校验，拒绝不完整的文档
func (d *chatSessionDoc) toModel() (*model.ChatSession, error) {
	s := &model.ChatSession{
		ID:                 d.ID.Hex(),
		VisitorID:          d.VisitorID,
		VisitorName:        d.VisitorName,
		VisitorEmail:       d.VisitorEmail,
		VisitorPhone:       d.VisitorPhone,
		Status:             model.SessionStatus(d.Status),
		LastMessagePreview: d.LastMessagePreview,
		LastMessageAt:      d.LastMessageAt.UTC(),
		CreatedAt:          d.CreatedAt.UTC(),
	}
	if err := model.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func newMessageDoc(m *model.ChatMessage) *chatMessageDoc {
	return &chatMessageDoc{
		SessionID:   m.SessionID,
		Message:     m.Message,
		SenderName:  m.SenderName,
		IsFromAdmin: m.IsFromAdmin,
		SenderEmail: m.SenderEmail,
		SenderPhone: m.SenderPhone,
		CreatedAt:   m.CreatedAt,
	}
}

func (d *chatMessageDoc) toModel() (*model.ChatMessage, error) {
	m := &model.ChatMessage{
		ID:          d.ID.Hex(),
		SessionID:   d.SessionID,
		Message:     d.Message,
		SenderName:  d.SenderName,
		IsFromAdmin: d.IsFromAdmin,
		SenderEmail: d.SenderEmail,
		SenderPhone: d.SenderPhone,
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if err := model.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}
