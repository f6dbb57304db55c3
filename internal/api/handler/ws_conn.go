package handler

import (
	"Horizon/internal/api/dto"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsMaxFrameSize = 16 << 10
)

// wsConn 一条 WebSocket 连接：状态变更合并成一次推送，所有写操作都在 writeLoop 中完成
type wsConn struct {
	conn     *websocket.Conn
	signal   chan struct{}
	frames   chan *dto.ServerFrame
	done     chan struct{}
	doneOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn:   conn,
		signal: make(chan struct{}, 1),
		frames: make(chan *dto.ServerFrame, 8),
		done:   make(chan struct{}),
	}
}

// Notify 标记状态已变化，不阻塞
func (w *wsConn) Notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// SendError 推送一条错误帧，缓冲满时丢弃
func (w *wsConn) SendError(msg string) {
	select {
	case w.frames <- &dto.ServerFrame{Type: dto.FrameError, Message: msg}:
	case <-w.done:
	default:
		log.Warn("ws error frame dropped", "message", msg)
	}
}

func (w *wsConn) stop() {
	w.doneOnce.Do(func() { close(w.done) })
}

// writeLoop 每次被唤醒时取最新快照推送，连接出错或 ctx 结束时退出
func (w *wsConn) writeLoop(ctx context.Context, snapshot func() interface{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case <-w.done:
			return
		case <-w.signal:
			if err := w.write(&dto.ServerFrame{Type: dto.FrameState, Data: snapshot()}); err != nil {
				log.WarnContext(ctx, "ws push state failed", "err", err)
				return
			}
		case frame := <-w.frames:
			if err := w.write(frame); err != nil {
				log.WarnContext(ctx, "ws push frame failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *wsConn) write(frame *dto.ServerFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// readLoop 逐帧解析并同步处理，连接断开时返回
func (w *wsConn) readLoop(ctx context.Context, handle func(frame *dto.ClientFrame)) {
	defer w.stop()
	w.conn.SetReadLimit(wsMaxFrameSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, context.Canceled) {
				log.DebugContext(ctx, "ws read ended", "err", err)
			}
			return
		}
		var frame dto.ClientFrame
		if err = json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
			w.SendError("malformed frame")
			continue
		}
		handle(&frame)
		select {
		case <-w.done:
			return
		default:
		}
	}
}
