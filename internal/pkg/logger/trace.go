package logger

import (
	"context"
	log "log/slog"
)

// TraceIDKey 定义 Context 中的 Key
const TraceIDKey = "trace_id"

type chatScopeKey struct{}

// ChatScope 一条 WebSocket 连接的身份: 访客或管理员
type ChatScope struct {
	Role    string
	Subject string
}

// WithTraceID 将 trace_id 写入 ctx
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithChatScope 连接级日志字段, 长连接里的后台 goroutine 也能带上
func WithChatScope(ctx context.Context, role, subject string) context.Context {
	return context.WithValue(ctx, chatScopeKey{}, ChatScope{Role: role, Subject: subject})
}

// TraceIDFrom 读取 ctx 中的 trace_id
func TraceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// ContextHandler 从 ctx 中提取 trace_id 与 chat scope
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if id := TraceIDFrom(ctx); id != "" {
		r.AddAttrs(log.String(TraceIDKey, id))
	}
	if ctx != nil {
		if scope, ok := ctx.Value(chatScopeKey{}).(ChatScope); ok {
			r.AddAttrs(log.String("chat_role", scope.Role), log.String("chat_subject", scope.Subject))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []log.Attr) log.Handler {
	return &ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) log.Handler {
	return &ContextHandler{h.Handler.WithGroup(name)}
}
