package handler

import (
	"Horizon/internal/api/dto"
	"Horizon/internal/api/middleware"
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/consts"
	"Horizon/internal/pkg/logger"
	"context"
	log "log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StorageFactory 按浏览器上下文返回客户端存储
type StorageFactory func(contextID string) chat.ClientStorage

// ChatWSHandler 访客挂件与管理后台收件箱的 WebSocket 入口，每条连接对应一个标签页
type ChatWSHandler struct {
	store    chat.SessionStore
	realtime chat.Realtime
	locker   chat.Locker
	storage  StorageFactory
	upgrader websocket.Upgrader
}

func NewChatWSHandler(store chat.SessionStore, realtime chat.Realtime, locker chat.Locker, storage StorageFactory, allowedOrigins []string) *ChatWSHandler {
	return &ChatWSHandler{
		store:    store,
		realtime: realtime,
		locker:   locker,
		storage:  storage,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     middleware.OriginChecker(allowedOrigins),
		},
	}
}

// serve 升级连接并运行读写循环，返回时连接上的所有资源已释放
func (s *ChatWSHandler) serve(c *gin.Context, setup func(ctx context.Context, ws *wsConn) (snapshot func() interface{}, handle func(*dto.ClientFrame), release func())) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WarnContext(c.Request.Context(), "ws upgrade failed", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(c.Request.Context())
	ws := newWSConn(conn)
	snapshot, handle, release := setup(ctx, ws)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ws.writeLoop(ctx, snapshot)
	}()
	ws.Notify()

	ws.readLoop(ctx, handle)

	cancel()
	<-writerDone
	release()
}

// VisitorConnect GET /api/chat/ws
func (s *ChatWSHandler) VisitorConnect(c *gin.Context) {
	contextID := c.GetString(middleware.ChatContextKey)
	c.Request = c.Request.WithContext(logger.WithChatScope(c.Request.Context(), "visitor", contextID))

	s.serve(c, func(ctx context.Context, ws *wsConn) (func() interface{}, func(*dto.ClientFrame), func()) {
		identity := chat.NewIdentity(s.storage(contextID), nil)
		ctrl := chat.NewVisitorController(s.store, s.realtime, s.locker, identity)
		ctrl.OnChange(ws.Notify)

		if err := ctrl.Mount(ctx); err != nil {
			log.WarnContext(ctx, "visitor mount failed", "contextID", contextID, "err", err)
		}
		log.InfoContext(ctx, "visitor ws connected", "visitorID", ctrl.VisitorID())

		snapshot := func() interface{} { return ctrl.Snapshot() }
		handle := func(frame *dto.ClientFrame) { s.handleVisitorFrame(ctx, ctrl, ws, frame) }
		return snapshot, handle, ctrl.Close
	})
}

func (s *ChatWSHandler) handleVisitorFrame(ctx context.Context, ctrl *chat.VisitorController, ws *wsConn, frame *dto.ClientFrame) {
	var err error
	switch frame.Type {
	case dto.FrameInit:
		_, err = ctrl.InitializeSession(ctx, frame.Details)
	case dto.FrameSend:
		err = ctrl.SendMessage(ctx, frame.Message, frame.Name, frame.Email, frame.Phone)
	case dto.FrameDetails:
		details := model.VisitorDetails{Name: frame.Name, Email: frame.Email, Phone: frame.Phone}
		if frame.Details != nil {
			details = *frame.Details
		}
		err = ctrl.UpdateVisitorDetails(ctx, details)
	default:
		ws.SendError("unknown frame type: " + frame.Type)
		return
	}
	if err != nil {
		// 控制器已把错误写进快照
		log.DebugContext(ctx, "visitor frame failed", "type", frame.Type, "err", err)
	}
}

// AdminConnect GET /api/admin/chat/ws?token=
func (s *ChatWSHandler) AdminConnect(c *gin.Context) {
	contextID := c.GetString(middleware.ChatContextKey)
	adminName := c.GetString(middleware.AdminNameKey)
	if adminName == "" {
		adminName = consts.DefaultAdminName
	}
	c.Request = c.Request.WithContext(logger.WithChatScope(c.Request.Context(), "admin", strconv.FormatUint(c.GetUint64(middleware.AdminIDKey), 10)))

	s.serve(c, func(ctx context.Context, ws *wsConn) (func() interface{}, func(*dto.ClientFrame), func()) {
		tracker := chat.NewUnreadTracker(s.store, s.storage(contextID), s.realtime, nil)
		ctrl := chat.NewAdminController(s.store, s.realtime, tracker)
		tracker.OnChange(ws.Notify)
		ctrl.OnChange(ws.Notify)

		if err := tracker.Start(ctx); err != nil {
			log.WarnContext(ctx, "unread tracker start failed", "err", err)
		}
		if err := ctrl.Start(ctx); err != nil {
			log.WarnContext(ctx, "admin inbox start failed", "err", err)
		}
		log.InfoContext(ctx, "admin ws connected", "admin", adminName)

		snapshot := func() interface{} { return inboxState(ctrl.Snapshot(), tracker.TotalUnread()) }
		handle := func(frame *dto.ClientFrame) { s.handleAdminFrame(ctx, ctrl, tracker, ws, adminName, frame) }
		release := func() {
			ctrl.Close()
			tracker.Close()
		}
		return snapshot, handle, release
	})
}

func (s *ChatWSHandler) handleAdminFrame(ctx context.Context, ctrl *chat.AdminController, tracker *chat.UnreadTracker, ws *wsConn, adminName string, frame *dto.ClientFrame) {
	var err error
	switch frame.Type {
	case dto.FrameSelect:
		if frame.SessionID == "" {
			ws.SendError("sessionId is required")
			return
		}
		err = ctrl.SelectSession(ctx, frame.SessionID)
	case dto.FrameSend:
		err = ctrl.SendMessage(ctx, frame.Message, adminName)
	case dto.FrameClose:
		sessionID := frame.SessionID
		if sessionID == "" {
			if selected := ctrl.Snapshot().SelectedSession; selected != nil {
				sessionID = selected.ID
			}
		}
		if sessionID == "" {
			ws.SendError("sessionId is required")
			return
		}
		err = ctrl.CloseSession(ctx, sessionID)
	case dto.FrameRefresh:
		if err = tracker.Refresh(ctx); err == nil {
			err = ctrl.RefreshSessions(ctx)
		}
	case dto.FrameMarkRead:
		if frame.SessionID == "" {
			ws.SendError("sessionId is required")
			return
		}
		if err = tracker.MarkSessionRead(ctx, frame.SessionID); err == nil {
			err = ctrl.RefreshSessions(ctx)
		}
	case dto.FrameMarkAllRead:
		if err = tracker.MarkAllRead(ctx); err == nil {
			err = ctrl.RefreshSessions(ctx)
		}
	default:
		ws.SendError("unknown frame type: " + frame.Type)
		return
	}
	if err != nil {
		log.DebugContext(ctx, "admin frame failed", "type", frame.Type, "err", err)
	}
}

func inboxState(snap chat.AdminSnapshot, totalUnread int) *dto.AdminInboxState {
	return &dto.AdminInboxState{
		Sessions:        snap.Sessions,
		SelectedSession: snap.SelectedSession,
		Messages:        snap.Messages,
		UnreadCounts:    snap.UnreadCounts,
		LastMessages:    snap.LastMessages,
		TotalUnread:     totalUnread,
		Loading:         snap.Loading,
		Error:           snap.Error,
	}
}
