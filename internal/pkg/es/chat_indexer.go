package es

import (
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"context"
)

// ChatIndexer 未启用 Kafka 时直接在写入路径上建索引
type ChatIndexer struct {
	repo ChatRepo
}

var _ chat.Publisher = (*ChatIndexer)(nil)

func NewChatIndexer(repo ChatRepo) *ChatIndexer {
	return &ChatIndexer{repo: repo}
}

func (s *ChatIndexer) PublishMessage(ctx context.Context, msg *model.ChatMessage) error {
	return s.repo.IndexMessage(ctx, NewChatMessageES(msg))
}

func (s *ChatIndexer) PublishSession(context.Context, chat.SessionChange) error {
	return nil
}
