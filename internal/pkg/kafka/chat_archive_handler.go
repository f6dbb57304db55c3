package kafka

import (
	"Horizon/internal/pkg/consts"
	"Horizon/internal/pkg/es"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ChatArchiveHandler 消费聊天事件，把消息写入 ES 供后台检索
type ChatArchiveHandler struct {
	chatESRepo es.ChatRepo
}

func NewChatArchiveHandler(chatESRepo es.ChatRepo) *ChatArchiveHandler {
	return &ChatArchiveHandler{chatESRepo: chatESRepo}
}

func (s *ChatArchiveHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("chat archive consumer setup")
	return nil
}

func (s *ChatArchiveHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("chat archive consumer cleanup")
	return nil
}

func (s *ChatArchiveHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("process batch error", "err", err)
		return err
	}
	return nil
}

// logic 会话事件不需要索引
func (s *ChatArchiveHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	evt, err := ToChatEvent(msg)
	if err != nil {
		return err
	}
	if evt.Type != consts.ChatEventMessage {
		return nil
	}
	return s.chatESRepo.IndexMessage(ctx, es.NewChatMessageES(evt.Message))
}
