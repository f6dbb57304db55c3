package kafka

import (
	"Horizon/internal/api/config"
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/es"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
)

type fakeChatRepo struct {
	indexed []*es.ChatMessageES
}

func (f *fakeChatRepo) IndexMessage(_ context.Context, msg *es.ChatMessageES) error {
	f.indexed = append(f.indexed, msg)
	return nil
}

func (f *fakeChatRepo) SearchMessages(context.Context, string, string, int, int) ([]*es.ChatMessageES, error) {
	return nil, nil
}

func testMessage() *model.ChatMessage {
	return &model.ChatMessage{
		ID: "m1", SessionID: "s1", Message: "IELTS batches?", SenderName: "Priya",
		CreatedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestChatEventProducerKeysBySession(t *testing.T) {
	cfg := mocks.NewTestConfig()
	mock := mocks.NewSyncProducer(t, cfg)
	defer func() { _ = mock.Close() }()

	var sent *ChatEvent
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		key, _ := m.Key.Encode()
		if string(key) != "s1" {
			t.Errorf("key = %q, want s1", key)
		}
		value, _ := m.Value.Encode()
		sent = &ChatEvent{}
		return json.Unmarshal(value, sent)
	})

	p := newChatEventProducer(mock, "chat-events")
	if err := p.PublishMessage(context.Background(), testMessage()); err != nil {
		t.Fatalf("PublishMessage() error = %v", err)
	}
	if sent == nil || sent.Type != "message" || sent.Message.ID != "m1" {
		t.Errorf("sent event = %+v", sent)
	}
	if sent != nil && sent.OccurredAt.IsZero() {
		t.Error("occurredAt not set")
	}
}

func TestToChatEventRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"unknown type":    `{"type":"typing"}`,
		"missing message": `{"type":"message"}`,
		"invalid message": `{"type":"message","message":{"id":"x"}}`,
		"missing session": `{"type":"session","session":{"op":"created"}}`,
	}
	for name, raw := range cases {
		_, err := ToChatEvent(&sarama.ConsumerMessage{Value: []byte(raw)})
		if !errors.Is(err, ErrSkipMessage) {
			t.Errorf("%s: err = %v, want ErrSkipMessage", name, err)
		}
	}
}

func TestChatArchiveHandlerIndexesMessages(t *testing.T) {
	repo := &fakeChatRepo{}
	h := NewChatArchiveHandler(repo)

	msgEvt, _ := json.Marshal(&ChatEvent{Type: "message", Message: testMessage()})
	now := time.Now().UTC()
	sessEvt, _ := json.Marshal(&ChatEvent{Type: "session", Session: &chat.SessionChange{
		Op:      chat.SessionCreated,
		Session: &model.ChatSession{ID: "s1", VisitorID: "v", Status: model.SessionActive, CreatedAt: now},
	}})

	ctx := context.Background()
	if err := h.logic(ctx, &sarama.ConsumerMessage{Value: msgEvt}); err != nil {
		t.Fatalf("logic(message) error = %v", err)
	}
	if err := h.logic(ctx, &sarama.ConsumerMessage{Value: sessEvt}); err != nil {
		t.Fatalf("logic(session) error = %v", err)
	}

	if len(repo.indexed) != 1 {
		t.Fatalf("indexed = %d, want 1", len(repo.indexed))
	}
	if got := repo.indexed[0]; got.ID != "m1" || got.SessionID != "s1" || got.Message != "IELTS batches?" {
		t.Errorf("indexed doc = %+v", got)
	}
}

func TestSaramaConfigs(t *testing.T) {
	kafkaCfg := config.KafkaConfig{
		Sasl:     config.SaslConfig{Enable: true, Username: "u", Password: "p"},
		Consumer: config.ConsumerConfig{SessionTimeout: 30},
	}

	consumer := newConsumerConfig(kafkaCfg)
	if consumer.Consumer.Offsets.AutoCommit.Enable {
		t.Error("consumer auto commit enabled")
	}
	if consumer.Consumer.Group.Session.Timeout != 30*time.Second {
		t.Errorf("session timeout = %v", consumer.Consumer.Group.Session.Timeout)
	}
	if consumer.Consumer.Group.Heartbeat.Interval != sarama.NewConfig().Consumer.Group.Heartbeat.Interval {
		t.Error("zero heartbeat overrode the sarama default")
	}
	if !consumer.Net.SASL.Enable || consumer.Net.SASL.User != "u" {
		t.Error("sasl not applied")
	}

	producer := newProducerConfig(kafkaCfg)
	if !producer.Producer.Return.Successes || producer.Net.MaxOpenRequests != 1 {
		t.Errorf("producer config = %+v", producer.Producer)
	}
	if err := producer.Validate(); err != nil {
		t.Errorf("producer config invalid: %v", err)
	}
}
