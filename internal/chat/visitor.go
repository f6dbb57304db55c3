package chat

import (
	"Horizon/internal/model"
	"context"
	log "log/slog"
	"strings"
	"sync"
)

type VisitorState string

const (
	StateUninitialized VisitorState = "uninitialized"
	StateChecking      VisitorState = "checking"
	StateNoSession     VisitorState = "no_session"
	StateInitializing  VisitorState = "initializing"
	StateActive        VisitorState = "active"
)

const defaultVisitorName = "Visitor"

// VisitorSnapshot 访客聊天窗口读取的状态
type VisitorSnapshot struct {
	State    VisitorState         `json:"state"`
	Session  *model.ChatSession   `json:"session"`
	Messages []*model.ChatMessage `json:"messages"`
	Loading  bool                 `json:"loading"`
	Error    string               `json:"error,omitempty"`
}

// VisitorController 管理一个浏览器标签页内访客的会话生命周期。
// 发送的消息不直接写入本地列表，只通过实时订阅回显。
type VisitorController struct {
	store    SessionStore
	realtime Realtime
	locker   Locker
	identity *Identity

	mu         sync.Mutex
	state      VisitorState
	visitorID  string
	session    *model.ChatSession
	messages   *MessageList
	msgSub     Subscription
	sessionSub Subscription
	gen        uint64
	loading    bool
	errMsg     string
	closed     bool
	onChange   func()
}

func NewVisitorController(store SessionStore, realtime Realtime, locker Locker, identity *Identity) *VisitorController {
	return &VisitorController{
		store:    store,
		realtime: realtime,
		locker:   locker,
		identity: identity,
		state:    StateUninitialized,
		messages: NewMessageList(),
	}
}

// OnChange 注册状态变化回调，回调在锁外执行
func (c *VisitorController) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Mount 页面加载：只查找已有会话，不创建
func (c *VisitorController) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateChecking
	c.loading = true
	c.mu.Unlock()
	c.notify()

	visitorID, err := c.identity.GetOrCreateVisitorID(ctx)
	if err != nil {
		c.fail(StateNoSession, errMsgLoadSession)
		return err
	}

	c.mu.Lock()
	c.visitorID = visitorID
	c.mu.Unlock()

	c.watchSessions(ctx)

	session, err := c.store.FindActiveSession(ctx, visitorID)
	if err != nil {
		c.fail(StateNoSession, errMsgLoadSession)
		return err
	}
	if session == nil {
		c.mu.Lock()
		c.state = StateNoSession
		c.loading = false
		c.mu.Unlock()
		c.notify()
		return nil
	}
	return c.attach(ctx, session)
}

// InitializeSession 用户表达聊天意图时调用，走 get-or-create，不会重复创建
func (c *VisitorController) InitializeSession(ctx context.Context, details *model.VisitorDetails) (*model.ChatSession, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if c.state == StateActive && c.session.IsActive() {
		s := c.session.Clone()
		c.mu.Unlock()
		return s, nil
	}
	prev := c.state
	c.state = StateInitializing
	c.loading = true
	c.errMsg = ""
	visitorID := c.visitorID
	c.mu.Unlock()
	c.notify()

	if visitorID == "" {
		id, err := c.identity.GetOrCreateVisitorID(ctx)
		if err != nil {
			c.fail(prev, errMsgStartSession)
			return nil, err
		}
		visitorID = id
		c.mu.Lock()
		c.visitorID = id
		c.mu.Unlock()
		c.watchSessions(ctx)
	}

	session, err := GetOrCreateSession(ctx, c.store, c.locker, visitorID, details)
	if err != nil {
		log.ErrorContext(ctx, "initialize chat session failed", "visitorID", visitorID, "err", err)
		c.fail(prev, errMsgStartSession)
		return nil, err
	}
	if err = c.attach(ctx, session); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// SendMessage 空消息或无会话时静默忽略
func (c *VisitorController) SendMessage(ctx context.Context, body, senderName, senderEmail, senderPhone string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	c.mu.Lock()
	session := c.session.Clone()
	c.mu.Unlock()
	if !session.IsActive() {
		return nil
	}

	if strings.TrimSpace(senderName) == "" {
		senderName = session.VisitorName
	}
	if strings.TrimSpace(senderName) == "" {
		senderName = defaultVisitorName
	}
	if senderEmail == "" {
		senderEmail = session.VisitorEmail
	}
	if senderPhone == "" {
		senderPhone = session.VisitorPhone
	}

	_, err := c.store.SendMessage(ctx, model.NewMessage{
		SessionID:   session.ID,
		Body:        body,
		SenderName:  senderName,
		SenderEmail: senderEmail,
		SenderPhone: senderPhone,
	})
	if err != nil {
		log.ErrorContext(ctx, "visitor send message failed", "sessionID", session.ID, "err", err)
		c.setError(errMsgSend)
		return err
	}
	c.clearError(errMsgSend)
	return nil
}

// UpdateVisitorDetails 合并访客联系方式到当前会话
func (c *VisitorController) UpdateVisitorDetails(ctx context.Context, details model.VisitorDetails) error {
	c.mu.Lock()
	session := c.session.Clone()
	c.mu.Unlock()
	if session == nil || details.IsEmpty() {
		return nil
	}

	updated, err := c.store.UpdateSessionDetails(ctx, session.ID, details)
	if err != nil {
		log.ErrorContext(ctx, "update visitor details failed", "sessionID", session.ID, "err", err)
		c.setError(errMsgUpdateDetails)
		return err
	}

	c.mu.Lock()
	if c.session != nil && c.session.ID == updated.ID {
		c.session = updated.Clone()
	}
	if c.errMsg == errMsgUpdateDetails {
		c.errMsg = ""
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *VisitorController) Snapshot() VisitorSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return VisitorSnapshot{
		State:    c.state,
		Session:  c.session.Clone(),
		Messages: c.messages.Items(),
		Loading:  c.loading,
		Error:    c.errMsg,
	}
}

func (c *VisitorController) VisitorID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visitorID
}

// Close 释放全部订阅，之后不再有回调
func (c *VisitorController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	msgSub, sessionSub := c.msgSub, c.sessionSub
	c.msgSub, c.sessionSub = nil, nil
	c.onChange = nil
	c.mu.Unlock()

	closeSub(msgSub)
	closeSub(sessionSub)
}

// attach 先订阅再拉历史，两边的重复由 MessageList 去重
func (c *VisitorController) attach(ctx context.Context, session *model.ChatSession) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.session != nil && c.session.ID == session.ID && c.msgSub != nil {
		c.session = session.Clone()
		c.state = StateActive
		c.loading = false
		c.mu.Unlock()
		c.notify()
		return nil
	}
	old := c.msgSub
	c.msgSub = nil
	c.gen++
	gen := c.gen
	c.session = session.Clone()
	c.messages.Reset()
	c.state = StateActive
	c.loading = true
	c.mu.Unlock()
	closeSub(old)

	sessionID := session.ID
	sub, err := c.realtime.SubscribeToMessages(ctx, sessionID, func(m *model.ChatMessage) {
		c.receive(gen, sessionID, m)
	})
	if err != nil {
		log.WarnContext(ctx, "subscribe to session messages failed, live updates disabled", "sessionID", sessionID, "err", err)
	}

	history, fetchErr := c.store.GetMessages(ctx, sessionID)

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		closeSub(sub)
		return nil
	}
	c.msgSub = sub
	c.loading = false
	if fetchErr != nil {
		log.ErrorContext(ctx, "load session messages failed", "sessionID", sessionID, "err", fetchErr)
		c.errMsg = errMsgLoadMessages
	} else {
		c.messages.Merge(history...)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *VisitorController) receive(gen uint64, sessionID string, m *model.ChatMessage) {
	c.mu.Lock()
	if c.gen != gen || c.closed || m.SessionID != sessionID {
		c.mu.Unlock()
		return
	}
	changed := c.messages.Merge(m)
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// watchSessions 关注当前会话被管理员关闭
func (c *VisitorController) watchSessions(ctx context.Context) {
	c.mu.Lock()
	if c.sessionSub != nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	sub, err := c.realtime.SubscribeToSessions(ctx, c.onSessionChange)
	if err != nil {
		log.WarnContext(ctx, "subscribe to session changes failed", "err", err)
		return
	}

	c.mu.Lock()
	if c.sessionSub != nil || c.closed {
		c.mu.Unlock()
		closeSub(sub)
		return
	}
	c.sessionSub = sub
	c.mu.Unlock()
}

func (c *VisitorController) onSessionChange(change SessionChange) {
	if change.Session == nil {
		return
	}
	c.mu.Lock()
	if c.closed || c.session == nil || c.session.ID != change.Session.ID || staleSession(c.session, change.Session) {
		c.mu.Unlock()
		return
	}
	c.session = change.Session.Clone()
	c.mu.Unlock()
	c.notify()
}

func (c *VisitorController) fail(state VisitorState, msg string) {
	c.mu.Lock()
	c.state = state
	c.loading = false
	c.errMsg = msg
	c.mu.Unlock()
	c.notify()
}

func (c *VisitorController) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
	c.notify()
}

func (c *VisitorController) clearError(msg string) {
	c.mu.Lock()
	if c.errMsg != msg {
		c.mu.Unlock()
		return
	}
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()
}

func (c *VisitorController) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
