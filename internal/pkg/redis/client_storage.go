package redis

import (
	"Horizon/internal/chat"
	"Horizon/internal/pkg/consts"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ClientStorage 单个浏览器上下文的持久存储，每个上下文一个 hash
type ClientStorage struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

var _ chat.ClientStorage = (*ClientStorage)(nil)

func NewClientStorage(rdb *redis.Client, contextID string, ttl time.Duration) *ClientStorage {
	return &ClientStorage{rdb: rdb, key: consts.ChatClientStorageKey + contextID, ttl: ttl}
}

func (s *ClientStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "client storage get")
	}
	return v, true, nil
}

// Set 写入并续期整个上下文
func (s *ClientStorage) Set(ctx context.Context, key, value string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.key, key, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "client storage set")
}

func (s *ClientStorage) Delete(ctx context.Context, key string) error {
	return errors.Wrap(s.rdb.HDel(ctx, s.key, key).Err(), "client storage delete")
}
