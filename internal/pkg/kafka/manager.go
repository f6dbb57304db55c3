package kafka

import (
	"Horizon/internal/api/config"
	"Horizon/internal/pkg/es"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	chatArchiveConsumer sarama.ConsumerGroup
	chatArchiveHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, chatESRepo es.ChatRepo) (*ConsumerManager, error) {
	saramaCfg := newConsumerConfig(cfg.Kafka)

	chatArchiveConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.ChatArchiveGroup, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		chatArchiveConsumer: chatArchiveConsumer,
		chatArchiveHandler:  NewChatArchiveHandler(chatESRepo),
	}, nil
}

// Start 启动所有消费者，阻塞到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go func() {
		topic := cfg.Kafka.ChatTopic
		log.Info("Chat archive consumer started", "topic", topic)
		for {
			if err := m.chatArchiveConsumer.Consume(ctx, []string{topic}, m.chatArchiveHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range m.chatArchiveConsumer.Errors() {
			log.Error("Chat archive consumer error", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.chatArchiveConsumer.Close(); err != nil {
		log.Error("Failed to close chat archive consumer", "err", err)
	}
	return nil
}
