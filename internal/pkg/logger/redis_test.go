package logger

import (
	"context"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestDescribeArgsHidesPayloads(t *testing.T) {
	ctx := context.Background()

	pub := redis.NewIntCmd(ctx, "publish", "chat:message", `{"message":"my passport number is"}`)
	if got := describeArgs(pub); strings.Contains(got, "passport") || !strings.Contains(got, "chat:message") {
		t.Errorf("publish args = %q", got)
	}

	hset := redis.NewIntCmd(ctx, "hset", "chat:storage:ctx", "chat_visitor_id", "visitor_1", "admin_last_read_a", "2026")
	if got := describeArgs(hset); got != "[hset chat:storage:ctx <2 fields>]" {
		t.Errorf("hset args = %q", got)
	}

	auth := redis.NewStatusCmd(ctx, "auth", "secret")
	if got := describeArgs(auth); got != "[PROTECTED]" {
		t.Errorf("auth args = %q", got)
	}
}

func TestGormParamsFilterDropsValues(t *testing.T) {
	sql, params := NewGormLogger().ParamsFilter(context.Background(), "INSERT INTO admins (password_hash) VALUES (?)", "$2a$10$hash")
	if params != nil || !strings.Contains(sql, "?") {
		t.Errorf("ParamsFilter() = %q, %v", sql, params)
	}
}
