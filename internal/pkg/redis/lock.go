package redis

import (
	"Horizon/internal/chat"
	"Horizon/internal/pkg/consts"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("acquire lock timeout")

// Locker 基于 SETNX 的分布式锁，多实例部署时串行化同一访客的建会话
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ chat.Locker = (*Locker)(nil)

func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// Lock 阻塞直到拿到锁或 ctx 结束，最多等待一个 ttl
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	key = consts.ChatSessionLock + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	ok, err := TryLock(waitCtx, l.rdb, key, token, l.ttl, -1)
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrLockTimeout
		}
		return nil, errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return nil, ErrLockTimeout
	}

	return func() {
		unlockCtx, unlockCancel := context.WithTimeout(context.Background(), time.Second)
		defer unlockCancel()
		if err := UnLock(unlockCtx, l.rdb, key, token); err != nil {
			log.Warn("release lock failed", "key", key, "err", err)
		}
	}, nil
}
