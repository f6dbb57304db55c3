package kafka

import (
	"Horizon/internal/api/config"
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/consts"
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ChatEventProducer 把写入成功的会话变更投递到 Kafka，按会话 ID 分区保证同一会话有序
type ChatEventProducer struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

var _ chat.Publisher = (*ChatEventProducer)(nil)

func NewChatEventProducer(cfg config.KafkaConfig) (*ChatEventProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newProducerConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return newChatEventProducer(producer, cfg.ChatTopic), nil
}

func newChatEventProducer(producer sarama.SyncProducer, topic string) *ChatEventProducer {
	return &ChatEventProducer{producer: producer, topic: topic, now: time.Now}
}

func (p *ChatEventProducer) PublishMessage(_ context.Context, msg *model.ChatMessage) error {
	return p.send(msg.SessionID, &ChatEvent{Type: consts.ChatEventMessage, Message: msg})
}

func (p *ChatEventProducer) PublishSession(_ context.Context, change chat.SessionChange) error {
	return p.send(change.Session.ID, &ChatEvent{Type: consts.ChatEventSession, Session: &change})
}

func (p *ChatEventProducer) send(key string, evt *ChatEvent) error {
	evt.OccurredAt = p.now().UTC()
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	return errors.Wrap(err, "send chat event")
}

func (p *ChatEventProducer) Close() error {
	return p.producer.Close()
}
