package logger

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

const mongoSlowDuration = 200 * time.Millisecond

// 连接握手与心跳命令不记录
var mongoQuietCommands = map[string]struct{}{
	"hello":        {},
	"isMaster":     {},
	"ismaster":     {},
	"ping":         {},
	"saslStart":    {},
	"saslContinue": {},
	"endSessions":  {},
	"buildInfo":    {},
}

// NewMongoMonitor 记录 chat_sessions / chat_messages 上的命令, 成功日志带上集合名
func NewMongoMonitor() *event.CommandMonitor {
	var collections sync.Map // request id -> collection

	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			if _, quiet := mongoQuietCommands[evt.CommandName]; quiet {
				return
			}
			coll, _ := evt.Command.Lookup(evt.CommandName).StringValueOK()
			collections.Store(evt.RequestID, coll)

			log.DebugContext(ctx, "MongoDB Started",
				log.String("command", evt.CommandName),
				log.String("collection", coll),
				log.Int64("request_id", evt.RequestID),
				log.String("cmd_detail", clip(evt.Command.String(), bodyLogLimit)),
			)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			coll, ok := collections.LoadAndDelete(evt.RequestID)
			if !ok {
				return
			}
			fields := []any{
				log.String("command", evt.CommandName),
				log.Any("collection", coll),
				log.Duration("latency", evt.Duration),
				log.Int64("request_id", evt.RequestID),
			}
			if evt.Duration > mongoSlowDuration {
				log.WarnContext(ctx, "MongoDB Slow", fields...)
			} else {
				log.InfoContext(ctx, "MongoDB Success", fields...)
			}
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			coll, _ := collections.LoadAndDelete(evt.RequestID)
			log.ErrorContext(ctx, "MongoDB Error",
				log.String("command", evt.CommandName),
				log.Any("collection", coll),
				log.Duration("latency", evt.Duration),
				log.Int64("request_id", evt.RequestID),
				log.Any("err", evt.Failure),
			)
		},
	}
}
