package kafka

import (
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/consts"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// ChatEvent 聊天事件流上的消息体
type ChatEvent struct {
	Type       string              `json:"type"`
	Message    *model.ChatMessage  `json:"message,omitempty"`
	Session    *chat.SessionChange `json:"session,omitempty"`
	OccurredAt time.Time           `json:"occurredAt"`
}

// ToChatEvent 解析并校验，不合法的消息返回 ErrSkipMessage
func ToChatEvent(msg *sarama.ConsumerMessage) (*ChatEvent, error) {
	var evt ChatEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSkipMessage, err)
	}

	switch evt.Type {
	case consts.ChatEventMessage:
		if evt.Message == nil {
			return nil, fmt.Errorf("%w: message event without message", ErrSkipMessage)
		}
		if err := model.Validate(evt.Message); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSkipMessage, err)
		}
	case consts.ChatEventSession:
		if evt.Session == nil || evt.Session.Session == nil {
			return nil, fmt.Errorf("%w: session event without session", ErrSkipMessage)
		}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrSkipMessage, evt.Type)
	}
	return &evt, nil
}
