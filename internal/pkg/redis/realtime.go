package redis

import (
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/consts"
	"context"
	log "log/slog"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Realtime 基于 Redis pub/sub 的实时通道，同时实现订阅与广播
type Realtime struct {
	rdb *redis.Client
}

var (
	_ chat.Realtime  = (*Realtime)(nil)
	_ chat.Publisher = (*Realtime)(nil)
)

func NewRealtime(rdb *redis.Client) *Realtime {
	return &Realtime{rdb: rdb}
}

func messageChannel(sessionID string) string {
	return consts.ChatMessageChannel + sessionID
}

// PublishMessage 同时投递到会话频道和全局频道
func (r *Realtime) PublishMessage(ctx context.Context, msg *model.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := r.rdb.Pipeline()
	pipe.Publish(ctx, messageChannel(msg.SessionID), payload)
	pipe.Publish(ctx, consts.ChatAllMessageChannel, payload)
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "publish chat message")
}

func (r *Realtime) PublishSession(ctx context.Context, change chat.SessionChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return errors.Wrap(r.rdb.Publish(ctx, consts.ChatSessionChannel, payload).Err(), "publish chat session")
}

func (r *Realtime) SubscribeToMessages(ctx context.Context, sessionID string, onMessage chat.MessageHandler) (chat.Subscription, error) {
	return r.subscribe(ctx, messageChannel(sessionID), messageDecoder(onMessage))
}

func (r *Realtime) SubscribeToAllMessages(ctx context.Context, onMessage chat.MessageHandler) (chat.Subscription, error) {
	return r.subscribe(ctx, consts.ChatAllMessageChannel, messageDecoder(onMessage))
}

func (r *Realtime) SubscribeToSessions(ctx context.Context, onChange chat.SessionHandler) (chat.Subscription, error) {
	return r.subscribe(ctx, consts.ChatSessionChannel, func(channel, payload string) {
		var change chat.SessionChange
		if err := json.Unmarshal([]byte(payload), &change); err != nil {
			log.Warn("drop malformed session event", "channel", channel, "err", err)
			return
		}
		if change.Session == nil {
			log.Warn("drop session event without session", "channel", channel)
			return
		}
		if err := model.Validate(change.Session); err != nil {
			log.Warn("drop invalid session event", "channel", channel, "err", err)
			return
		}
		onChange(change)
	})
}

func messageDecoder(onMessage chat.MessageHandler) func(channel, payload string) {
	return func(channel, payload string) {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			log.Warn("drop malformed chat message", "channel", channel, "err", err)
			return
		}
		if err := model.Validate(&msg); err != nil {
			log.Warn("drop invalid chat message", "channel", channel, "err", err)
			return
		}
		onMessage(&msg)
	}
}

// subscribe 等到服务端确认订阅后才返回，之后发布的消息都不会丢
func (r *Realtime) subscribe(ctx context.Context, channel string, handle func(channel, payload string)) (chat.Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrapf(err, "subscribe %s", channel)
	}

	sub := &subscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	go sub.run(handle)
	return sub, nil
}

// subscription Close 返回后不会再有回调；不能在回调内部调用 Close
type subscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
}

func (s *subscription) run(handle func(channel, payload string)) {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		if s.closed.Load() {
			return
		}
		handle(msg.Channel, msg.Payload)
	}
}

func (s *subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.closed.Store(true)
		if err := s.pubsub.Close(); err != nil {
			log.Warn("close pubsub failed", "err", err)
		}
		<-s.done
	})
}
