package chat

import (
	"Horizon/internal/model"
	"context"
	"time"
)

// SessionStore 会话与消息的持久化端口 (MongoDB 实现见 pkg/mongo)
type SessionStore interface {
	// FindActiveSession 没有 active 会话时返回 (nil, nil)
	FindActiveSession(ctx context.Context, visitorID string) (*model.ChatSession, error)
	CreateSession(ctx context.Context, visitorID string, details *model.VisitorDetails) (*model.ChatSession, error)
	GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	UpdateSessionDetails(ctx context.Context, sessionID string, details model.VisitorDetails) (*model.ChatSession, error)
	CloseSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, status model.SessionStatus) ([]*model.ChatSession, error)
	GetMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error)
	// SendMessage 写入消息并刷新所属会话的最后活跃时间
	SendMessage(ctx context.Context, in model.NewMessage) (*model.ChatMessage, error)
}

type SessionOp string

const (
	SessionCreated SessionOp = "created"
	SessionUpdated SessionOp = "updated"
)

// SessionChange 会话变更事件
type SessionChange struct {
	Op      SessionOp          `json:"op"`
	Session *model.ChatSession `json:"session"`
}

type MessageHandler func(msg *model.ChatMessage)

type SessionHandler func(change SessionChange)

// Subscription 订阅句柄，Close 幂等且可在 nil 上调用。
// Close 返回后该订阅不会再触发回调。
type Subscription interface {
	Close()
}

// Realtime 实时订阅端口，投递语义为至少一次，调用方需按 ID 去重
type Realtime interface {
	SubscribeToMessages(ctx context.Context, sessionID string, onMessage MessageHandler) (Subscription, error)
	SubscribeToAllMessages(ctx context.Context, onMessage MessageHandler) (Subscription, error)
	SubscribeToSessions(ctx context.Context, onChange SessionHandler) (Subscription, error)
}

// Publisher 写入成功后的变更广播
type Publisher interface {
	PublishMessage(ctx context.Context, msg *model.ChatMessage) error
	PublishSession(ctx context.Context, change SessionChange) error
}

// ClientStorage 单个浏览器上下文的本地持久存储
type ClientStorage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Locker 按 key 串行化，返回的 unlock 必须调用
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Clock func() time.Time

func closeSub(sub Subscription) {
	if sub != nil {
		sub.Close()
	}
}
