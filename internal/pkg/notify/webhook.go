package notify

import (
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// SessionWebhook 新会话创建时通知值班顾问，其他事件忽略
type SessionWebhook struct {
	url    string
	client *resty.Client
	wg     sync.WaitGroup
}

var _ chat.Publisher = (*SessionWebhook)(nil)

type webhookPayload struct {
	Event   string             `json:"event"`
	Session *model.ChatSession `json:"session"`
	SentAt  time.Time          `json:"sentAt"`
}

func NewSessionWebhook(url string) *SessionWebhook {
	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &SessionWebhook{url: url, client: client}
}

func (s *SessionWebhook) PublishMessage(context.Context, *model.ChatMessage) error {
	return nil
}

// PublishSession 异步投递，不阻塞访客建会话
func (s *SessionWebhook) PublishSession(_ context.Context, change chat.SessionChange) error {
	if change.Op != chat.SessionCreated || change.Session == nil {
		return nil
	}
	payload := webhookPayload{Event: "chat.session.created", Session: change.Session.Clone(), SentAt: time.Now().UTC()}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.send(ctx, payload); err != nil {
			log.Warn("session webhook failed", "sessionID", payload.Session.ID, "err", err)
		}
	}()
	return nil
}

func (s *SessionWebhook) send(ctx context.Context, payload webhookPayload) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook responded %d", resp.StatusCode())
	}
	return nil
}

// Wait 等待在途通知发送完毕，停机时调用
func (s *SessionWebhook) Wait() {
	s.wg.Wait()
}
