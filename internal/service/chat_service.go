package service

import (
	"Horizon/internal/api/dto"
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/es"
	"context"
	log "log/slog"
	"strings"

	"github.com/jinzhu/copier"
)

const defaultSearchSize = 20

// ChatService 管理后台的会话查询与操作（非实时部分）
type ChatService interface {
	ListSessions(ctx context.Context, status model.SessionStatus) ([]*dto.ChatSessionDTO, error)
	GetMessages(ctx context.Context, sessionID string) ([]*dto.ChatMessageDTO, error)
	CloseSession(ctx context.Context, sessionID string) error
	SearchMessages(ctx context.Context, query *dto.ChatSearchQuery) ([]*dto.ChatMessageDTO, error)
}

type ChatServiceImpl struct {
	store      chat.SessionStore
	chatESRepo es.ChatRepo
}

// NewChatService chatESRepo 为 nil 时检索不可用
func NewChatService(store chat.SessionStore, chatESRepo es.ChatRepo) ChatService {
	return &ChatServiceImpl{store: store, chatESRepo: chatESRepo}
}

func (s *ChatServiceImpl) ListSessions(ctx context.Context, status model.SessionStatus) ([]*dto.ChatSessionDTO, error) {
	if status == "" {
		status = model.SessionActive
	}
	if status != model.SessionActive && status != model.SessionClosed {
		return nil, ErrParamInvalid
	}
	sessions, err := s.store.ListSessions(ctx, status)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ChatSessionDTO, 0, len(sessions))
	if err = copier.Copy(&out, &sessions); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ChatServiceImpl) GetMessages(ctx context.Context, sessionID string) ([]*dto.ChatMessageDTO, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrParamInvalid
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ChatMessageDTO, 0, len(messages))
	if err = copier.Copy(&out, &messages); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseSession 关闭会话，变更由 store 广播给所有在线端
func (s *ChatServiceImpl) CloseSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrParamInvalid
	}
	return s.store.CloseSession(ctx, sessionID)
}

func (s *ChatServiceImpl) SearchMessages(ctx context.Context, query *dto.ChatSearchQuery) ([]*dto.ChatMessageDTO, error) {
	if s.chatESRepo == nil {
		return nil, ErrSearchUnavailable
	}
	keyword := strings.TrimSpace(query.Keyword)
	if keyword == "" || query.From < 0 {
		return nil, ErrParamInvalid
	}
	size := query.Size
	if size <= 0 {
		size = defaultSearchSize
	}

	hits, err := s.chatESRepo.SearchMessages(ctx, keyword, query.SessionID, query.From, size)
	if err != nil {
		log.ErrorContext(ctx, "search chat messages failed", "keyword", keyword, "err", err)
		return nil, UnExpectedError
	}
	out := make([]*dto.ChatMessageDTO, 0, len(hits))
	if err = copier.Copy(&out, &hits); err != nil {
		return nil, err
	}
	return out, nil
}
