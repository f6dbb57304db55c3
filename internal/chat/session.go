package chat

import (
	"Horizon/internal/model"
	"context"
	log "log/slog"
	"strings"
)

const visitorLockPrefix = "visitor:"

// GetOrCreateSession 查找访客的 active 会话，不存在则创建。
// 查找与创建在访客级别的锁内完成，保证同一访客最多一个 active 会话。
func GetOrCreateSession(ctx context.Context, store SessionStore, locker Locker, visitorID string, details *model.VisitorDetails) (*model.ChatSession, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, ErrVisitorIDRequired
	}

	if locker != nil {
		unlock, err := locker.Lock(ctx, visitorLockPrefix+visitorID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	session, err := store.FindActiveSession(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return store.CreateSession(ctx, visitorID, details)
	}

	if details != nil && !details.IsEmpty() && detailsDiffer(session, details.Normalize()) {
		return store.UpdateSessionDetails(ctx, session.ID, *details)
	}
	return session, nil
}

func detailsDiffer(s *model.ChatSession, d model.VisitorDetails) bool {
	return (d.Name != "" && d.Name != s.VisitorName) ||
		(d.Email != "" && d.Email != s.VisitorEmail) ||
		(d.Phone != "" && d.Phone != s.VisitorPhone)
}

// NotifyingStore 在写入成功后广播变更，广播失败只记录日志
type NotifyingStore struct {
	SessionStore
	publishers []Publisher
}

func NewNotifyingStore(base SessionStore, publishers ...Publisher) *NotifyingStore {
	return &NotifyingStore{SessionStore: base, publishers: publishers}
}

func (s *NotifyingStore) CreateSession(ctx context.Context, visitorID string, details *model.VisitorDetails) (*model.ChatSession, error) {
	session, err := s.SessionStore.CreateSession(ctx, visitorID, details)
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, SessionChange{Op: SessionCreated, Session: session})
	return session, nil
}

func (s *NotifyingStore) UpdateSessionDetails(ctx context.Context, sessionID string, details model.VisitorDetails) (*model.ChatSession, error) {
	session, err := s.SessionStore.UpdateSessionDetails(ctx, sessionID, details)
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, SessionChange{Op: SessionUpdated, Session: session})
	return session, nil
}

func (s *NotifyingStore) CloseSession(ctx context.Context, sessionID string) error {
	if err := s.SessionStore.CloseSession(ctx, sessionID); err != nil {
		return err
	}
	s.publishSessionByID(ctx, sessionID)
	return nil
}

func (s *NotifyingStore) SendMessage(ctx context.Context, in model.NewMessage) (*model.ChatMessage, error) {
	msg, err := s.SessionStore.SendMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	for _, p := range s.publishers {
		if err := p.PublishMessage(ctx, msg); err != nil {
			log.WarnContext(ctx, "publish chat message failed", "sessionID", msg.SessionID, "messageID", msg.ID, "err", err)
		}
	}
	s.publishSessionByID(ctx, msg.SessionID)
	return msg, nil
}

func (s *NotifyingStore) publishSessionByID(ctx context.Context, sessionID string) {
	session, err := s.SessionStore.GetSession(ctx, sessionID)
	if err != nil {
		log.WarnContext(ctx, "reload session for publish failed", "sessionID", sessionID, "err", err)
		return
	}
	s.publishSession(ctx, SessionChange{Op: SessionUpdated, Session: session})
}

func (s *NotifyingStore) publishSession(ctx context.Context, change SessionChange) {
	for _, p := range s.publishers {
		if err := p.PublishSession(ctx, change); err != nil {
			log.WarnContext(ctx, "publish chat session failed", "sessionID", change.Session.ID, "op", change.Op, "err", err)
		}
	}
}

// staleSession 判断迟到或重复投递的 active 事件: 关闭后又报 active，或最后活跃时间倒退。
// 关闭是终态，关闭事件总是生效
func staleSession(held, incoming *model.ChatSession) bool {
	if held == nil || incoming == nil || held.ID != incoming.ID || !incoming.IsActive() {
		return false
	}
	if !held.IsActive() {
		return true
	}
	return incoming.LastMessageAt.Before(held.LastMessageAt)
}
