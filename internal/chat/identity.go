package chat

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const VisitorIDKey = "chat_visitor_id"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Identity 持久化访客标识
type Identity struct {
	storage ClientStorage
	now     Clock
}

func NewIdentity(storage ClientStorage, now Clock) *Identity {
	if now == nil {
		now = time.Now
	}
	return &Identity{storage: storage, now: now}
}

// GetOrCreateVisitorID 同一浏览器上下文始终返回同一个标识
func (s *Identity) GetOrCreateVisitorID(ctx context.Context) (string, error) {
	if id, ok, err := s.storage.Get(ctx, VisitorIDKey); err != nil {
		return "", err
	} else if ok && id != "" {
		return id, nil
	}

	id := fmt.Sprintf("visitor_%d_%s", s.now().UnixMilli(), randomSuffix(9))
	if err := s.storage.Set(ctx, VisitorIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(base36)))
	for i := range buf {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			buf[i] = base36[time.Now().UnixNano()%int64(len(base36))]
			continue
		}
		buf[i] = base36[v.Int64()]
	}
	return string(buf)
}
