package service

import (
	"Horizon/internal/api/dto"
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/consts"
	"context"
	"fmt"
	"strings"
	"time"
)

// TranscriptObjects 聊天记录的对象存储 (MinIO 实现见 pkg/minio)
type TranscriptObjects interface {
	ObjectKey(sessionID string, createdAt time.Time) string
	Upload(ctx context.Context, objectName string, content []byte, contentType string) (string, error)
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type TranscriptService interface {
	// Export 上传最新的聊天记录并返回限时下载链接
	Export(ctx context.Context, sessionID string) (*dto.TranscriptDTO, error)
	// Archive 上传聊天记录，返回对象 key
	Archive(ctx context.Context, session *model.ChatSession) (string, error)
}

type TranscriptServiceImpl struct {
	store   chat.SessionStore
	objects TranscriptObjects
	expiry  time.Duration
	now     func() time.Time
}

func NewTranscriptService(store chat.SessionStore, objects TranscriptObjects, expiry time.Duration) TranscriptService {
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &TranscriptServiceImpl{store: store, objects: objects, expiry: expiry, now: time.Now}
}

func (s *TranscriptServiceImpl) Export(ctx context.Context, sessionID string) (*dto.TranscriptDTO, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrParamInvalid
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	key, err := s.Archive(ctx, session)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignedURL(ctx, key, s.expiry)
	if err != nil {
		return nil, err
	}
	return &dto.TranscriptDTO{
		ObjectKey: key,
		URL:       url,
		ExpiresAt: s.now().Add(s.expiry).UTC(),
	}, nil
}

func (s *TranscriptServiceImpl) Archive(ctx context.Context, session *model.ChatSession) (string, error) {
	messages, err := s.store.GetMessages(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", ErrTranscriptEmpty
	}
	key := s.objects.ObjectKey(session.ID, session.CreatedAt)
	return s.objects.Upload(ctx, key, RenderTranscript(session, messages), consts.TranscriptMimeType)
}

const transcriptTimeLayout = "2006-01-02 15:04:05 MST"

// RenderTranscript 纯文本聊天记录，消息按发送时间升序
func RenderTranscript(session *model.ChatSession, messages []*model.ChatMessage) []byte {
	sorted := make([]*model.ChatMessage, len(messages))
	copy(sorted, messages)
	model.SortMessages(sorted)

	var b strings.Builder
	b.WriteString("Chat transcript\n")
	fmt.Fprintf(&b, "Session: %s\n", session.ID)
	fmt.Fprintf(&b, "Visitor: %s\n", visitorLine(session))
	fmt.Fprintf(&b, "Started: %s\n", session.CreatedAt.UTC().Format(transcriptTimeLayout))
	fmt.Fprintf(&b, "Status: %s\n\n", session.Status)

	for _, m := range sorted {
		sender := m.SenderName
		if m.IsFromAdmin {
			sender += " (staff)"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.CreatedAt.UTC().Format(transcriptTimeLayout), sender, m.Message)
	}
	return []byte(b.String())
}

func visitorLine(session *model.ChatSession) string {
	parts := []string{session.VisitorID}
	if session.VisitorName != "" {
		parts = append(parts, session.VisitorName)
	}
	if session.VisitorEmail != "" {
		parts = append(parts, "<"+session.VisitorEmail+">")
	}
	if session.VisitorPhone != "" {
		parts = append(parts, session.VisitorPhone)
	}
	return strings.Join(parts, " ")
}
