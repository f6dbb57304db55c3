package chat

import (
	"Horizon/internal/model"
	"context"
	log "log/slog"
	"strings"
	"sync"
)

// AdminSnapshot 管理后台收件箱读取的状态
type AdminSnapshot struct {
	Sessions        []*model.ChatSession `json:"sessions"`
	SelectedSession *model.ChatSession   `json:"selectedSession"`
	Messages        []*model.ChatMessage `json:"messages"`
	UnreadCounts    map[string]int       `json:"unreadCounts"`
	LastMessages    map[string]string    `json:"lastMessages"`
	Loading         bool                 `json:"loading"`
	Error           string               `json:"error,omitempty"`
}

// AdminController 多会话收件箱：active 会话列表实时更新，同一时间只展开一个会话。
//
// 会话切换时先拆掉旧会话的订阅再挂新的，且回调按 threadGen 和 sessionID
// 双重过滤，旧回调不会把别的会话的消息塞进当前线程。
type AdminController struct {
	store    SessionStore
	realtime Realtime
	unread   *UnreadTracker

	mu           sync.Mutex
	ctx          context.Context
	sessions     []*model.ChatSession
	lastMessages map[string]string
	unreadCounts map[string]int
	counted      map[string]map[string]struct{} // sessionID -> 已计入未读的消息 ID
	closedIDs    map[string]struct{}            // 已关闭的会话，迟到的 active 事件不再加回列表
	loads        int                            // 进行中的 LoadSessions
	pending      []*model.ChatMessage           // 加载期间到达的消息，替换结果时回放
	selected     *model.ChatSession
	thread       *MessageList
	threadSub    Subscription
	threadGen    uint64
	sessionsSub  Subscription
	messagesSub  Subscription
	loading      bool
	errMsg       string
	closed       bool
	onChange     func()
}

func NewAdminController(store SessionStore, realtime Realtime, unread *UnreadTracker) *AdminController {
	return &AdminController{
		store:        store,
		realtime:     realtime,
		unread:       unread,
		ctx:          context.Background(),
		lastMessages: make(map[string]string),
		unreadCounts: make(map[string]int),
		counted:      make(map[string]map[string]struct{}),
		closedIDs:    make(map[string]struct{}),
		thread:       NewMessageList(),
	}
}

func (c *AdminController) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Start 先挂订阅再加载列表，订阅失败只影响实时性
func (c *AdminController) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	sessionsSub, err := c.realtime.SubscribeToSessions(ctx, c.onSessionChange)
	if err != nil {
		log.WarnContext(ctx, "subscribe to sessions failed, inbox not live", "err", err)
	}
	messagesSub, err := c.realtime.SubscribeToAllMessages(ctx, c.onAnyMessage)
	if err != nil {
		log.WarnContext(ctx, "subscribe to all messages failed, inbox not live", "err", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		closeSub(sessionsSub)
		closeSub(messagesSub)
		return nil
	}
	c.sessionsSub, c.messagesSub = sessionsSub, messagesSub
	c.mu.Unlock()

	return c.LoadSessions(ctx)
}

// LoadSessions 加载 active 会话及每个会话的最后一条消息。
// 没有冗余摘要的会话需要拉一次完整消息，规模较大时开销为 O(会话数 × 消息数)。
// 加载期间实时到达的消息记入 pending，替换结果时回放，摘要与未读数都不会丢。
func (c *AdminController) LoadSessions(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.loads++
	c.mu.Unlock()
	c.notify()

	sessions, err := c.store.ListSessions(ctx, model.SessionActive)
	if err != nil {
		log.ErrorContext(ctx, "load chat sessions failed", "err", err)
		c.mu.Lock()
		c.finishLoadLocked()
		c.errMsg = errMsgLoadSessions
		c.mu.Unlock()
		c.notify()
		return err
	}

	lastMessages := make(map[string]string, len(sessions))
	counted := make(map[string]map[string]struct{}, len(sessions))
	scans := make(map[string]UnreadScan, len(sessions))
	for _, s := range sessions {
		if s.LastMessagePreview != "" {
			lastMessages[s.ID] = s.LastMessagePreview
		} else if msgs, err := c.store.GetMessages(ctx, s.ID); err != nil {
			log.WarnContext(ctx, "load last message failed", "sessionID", s.ID, "err", err)
		} else if len(msgs) > 0 {
			model.SortMessages(msgs)
			lastMessages[s.ID] = model.Preview(msgs[len(msgs)-1].Message)
		}

		set := make(map[string]struct{})
		if c.unread != nil {
			scan, err := c.unread.ScanSession(ctx, s.ID)
			if err != nil {
				log.WarnContext(ctx, "compute unread failed", "sessionID", s.ID, "err", err)
			} else {
				scans[s.ID] = scan
			}
			for _, id := range scan.IDs {
				set[id] = struct{}{}
			}
		}
		counted[s.ID] = set
	}

	c.mu.Lock()
	fresh := make(map[string]*model.ChatSession, len(sessions))
	for _, s := range sessions {
		fresh[s.ID] = s
	}
	for _, m := range c.pending {
		s, ok := fresh[m.SessionID]
		if !ok {
			// 列表查询之后才出现的会话，沿用实时事件加入的那份
			held := c.findLocked(m.SessionID)
			if held == nil {
				continue
			}
			if _, closed := c.closedIDs[held.ID]; closed {
				continue
			}
			s = held
			fresh[s.ID] = s
			sessions = append(sessions, s)
			set := make(map[string]struct{}, len(c.counted[s.ID]))
			for id := range c.counted[s.ID] {
				set[id] = struct{}{}
			}
			counted[s.ID] = set
		}
		if !m.CreatedAt.Before(s.LastMessageAt) {
			s.LastMessageAt = m.CreatedAt
			s.LastMessagePreview = model.Preview(m.Message)
			lastMessages[s.ID] = s.LastMessagePreview
		}
		if m.IsFromAdmin || (c.selected != nil && c.selected.ID == s.ID) {
			continue
		}
		if scan, ok := scans[s.ID]; ok && !scan.Counts(m.CreatedAt) {
			continue
		}
		counted[s.ID][m.ID] = struct{}{}
	}
	model.SortSessions(sessions)

	unreadCounts := make(map[string]int, len(sessions))
	for id, set := range counted {
		unreadCounts[id] = len(set)
	}
	c.sessions = sessions
	c.lastMessages = lastMessages
	c.unreadCounts = unreadCounts
	c.counted = counted
	if c.selected != nil {
		c.unreadCounts[c.selected.ID] = 0
	}
	c.finishLoadLocked()
	if c.errMsg == errMsgLoadSessions {
		c.errMsg = ""
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *AdminController) finishLoadLocked() {
	c.loads--
	if c.loads <= 0 {
		c.loads = 0
		c.pending = nil
		c.loading = false
	}
}

// RefreshSessions 供前端手动刷新
func (c *AdminController) RefreshSessions(ctx context.Context) error {
	return c.LoadSessions(ctx)
}

// SelectSession 切换当前会话：清空旧线程，未读归零，旧订阅拆除后再挂新订阅
func (c *AdminController) SelectSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	session := c.findLocked(sessionID)
	c.mu.Unlock()

	if session == nil {
		fetched, err := c.store.GetSession(ctx, sessionID)
		if err != nil {
			log.ErrorContext(ctx, "load selected session failed", "sessionID", sessionID, "err", err)
			c.setError(errMsgLoadMessages)
			return err
		}
		session = fetched
	}

	c.mu.Lock()
	old := c.threadSub
	c.threadSub = nil
	c.threadGen++
	gen := c.threadGen
	c.selected = session.Clone()
	c.thread.Reset()
	c.unreadCounts[sessionID] = 0
	c.loading = true
	c.mu.Unlock()
	c.notify()
	closeSub(old)

	if c.unread != nil {
		c.unread.SetViewing(sessionID)
		if err := c.unread.MarkSessionRead(ctx, sessionID); err != nil {
			log.WarnContext(ctx, "mark session read failed", "sessionID", sessionID, "err", err)
		}
	}

	sub, err := c.realtime.SubscribeToMessages(ctx, sessionID, func(m *model.ChatMessage) {
		c.onThreadMessage(gen, sessionID, m)
	})
	if err != nil {
		log.WarnContext(ctx, "subscribe to thread failed, live updates disabled", "sessionID", sessionID, "err", err)
	}

	history, fetchErr := c.store.GetMessages(ctx, sessionID)

	c.mu.Lock()
	if c.threadGen != gen || c.closed {
		c.mu.Unlock()
		closeSub(sub)
		return nil
	}
	c.threadSub = sub
	c.loading = false
	if fetchErr != nil {
		log.ErrorContext(ctx, "load thread failed", "sessionID", sessionID, "err", fetchErr)
		c.errMsg = errMsgLoadMessages
	} else {
		c.thread.Merge(history...)
		if c.errMsg == errMsgLoadMessages {
			c.errMsg = ""
		}
	}
	c.mu.Unlock()
	c.notify()
	return fetchErr
}

// SendMessage 管理员回复，消息同样只通过订阅回显
func (c *AdminController) SendMessage(ctx context.Context, body, adminName string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	c.mu.Lock()
	selected := c.selected.Clone()
	c.mu.Unlock()
	if selected == nil {
		return nil
	}
	if strings.TrimSpace(adminName) == "" {
		adminName = "Admin"
	}

	_, err := c.store.SendMessage(ctx, model.NewMessage{
		SessionID:   selected.ID,
		Body:        body,
		SenderName:  adminName,
		IsFromAdmin: true,
	})
	if err != nil {
		log.ErrorContext(ctx, "admin send message failed", "sessionID", selected.ID, "err", err)
		c.setError(errMsgSend)
		return err
	}
	c.clearError(errMsgSend)
	return nil
}

// CloseSession 远端标记关闭并移出列表，若是当前会话则清空线程
func (c *AdminController) CloseSession(ctx context.Context, sessionID string) error {
	if err := c.store.CloseSession(ctx, sessionID); err != nil {
		log.ErrorContext(ctx, "close chat session failed", "sessionID", sessionID, "err", err)
		c.setError(errMsgCloseSession)
		return err
	}

	c.mu.Lock()
	c.closedIDs[sessionID] = struct{}{}
	c.removeLocked(sessionID)
	old, wasSelected := c.deselectLocked(sessionID)
	if c.errMsg == errMsgCloseSession {
		c.errMsg = ""
	}
	c.mu.Unlock()
	c.afterDeselect(old, wasSelected)
	c.notify()
	return nil
}

// deselectLocked 若 sessionID 是当前会话则清空线程并拆下线程订阅，返回待关闭的订阅
func (c *AdminController) deselectLocked(sessionID string) (Subscription, bool) {
	if c.selected == nil || c.selected.ID != sessionID {
		return nil, false
	}
	old := c.threadSub
	c.threadSub = nil
	c.threadGen++
	c.selected = nil
	c.thread.Reset()
	return old, true
}

func (c *AdminController) afterDeselect(old Subscription, wasSelected bool) {
	closeSub(old)
	if wasSelected && c.unread != nil {
		c.unread.SetViewing("")
	}
}

func (c *AdminController) Snapshot() AdminSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions := make([]*model.ChatSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s.Clone())
	}
	unreadCounts := make(map[string]int, len(c.unreadCounts))
	for k, v := range c.unreadCounts {
		unreadCounts[k] = v
	}
	lastMessages := make(map[string]string, len(c.lastMessages))
	for k, v := range c.lastMessages {
		lastMessages[k] = v
	}
	return AdminSnapshot{
		Sessions:        sessions,
		SelectedSession: c.selected.Clone(),
		Messages:        c.thread.Items(),
		UnreadCounts:    unreadCounts,
		LastMessages:    lastMessages,
		Loading:         c.loading,
		Error:           c.errMsg,
	}
}

func (c *AdminController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.threadGen++
	subs := []Subscription{c.threadSub, c.sessionsSub, c.messagesSub}
	c.threadSub, c.sessionsSub, c.messagesSub = nil, nil, nil
	c.onChange = nil
	c.mu.Unlock()

	for _, s := range subs {
		closeSub(s)
	}
}

func (c *AdminController) onThreadMessage(gen uint64, sessionID string, m *model.ChatMessage) {
	c.mu.Lock()
	if c.closed || c.threadGen != gen || c.selected == nil || c.selected.ID != sessionID || m.SessionID != sessionID {
		c.mu.Unlock()
		return
	}
	changed := c.thread.Merge(m)
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// onSessionChange 幂等合并：已存在则原位替换，否则插到最前，关闭的移出；最后重新排序
func (c *AdminController) onSessionChange(change SessionChange) {
	s := change.Session
	if s == nil || s.ID == "" {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if !s.IsActive() {
		c.closedIDs[s.ID] = struct{}{}
		c.removeLocked(s.ID)
		old, wasSelected := c.deselectLocked(s.ID)
		c.mu.Unlock()
		c.afterDeselect(old, wasSelected)
		c.notify()
		return
	}
	if _, closed := c.closedIDs[s.ID]; closed || staleSession(c.findLocked(s.ID), s) {
		c.mu.Unlock()
		return
	}
	if c.selected != nil && c.selected.ID == s.ID {
		c.selected = s.Clone()
	}
	c.upsertLocked(s.Clone())
	c.mu.Unlock()
	c.notify()
}

// onAnyMessage 全局消息：更新摘要；只有访客消息且不是当前会话才计未读
func (c *AdminController) onAnyMessage(m *model.ChatMessage) {
	if m == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	known := c.findLocked(m.SessionID) != nil
	if known {
		c.applyMessageLocked(m)
	}
	ctx := c.ctx
	c.mu.Unlock()

	if !known {
		// 新会话的第一条消息可能先于会话事件到达
		session, err := c.store.GetSession(ctx, m.SessionID)
		if err != nil {
			log.WarnContext(ctx, "load session for new message failed", "sessionID", m.SessionID, "err", err)
			return
		}
		if !session.IsActive() {
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if _, closed := c.closedIDs[session.ID]; closed {
			c.mu.Unlock()
			return
		}
		if c.findLocked(session.ID) == nil {
			c.upsertLocked(session)
		}
		c.applyMessageLocked(m)
		c.mu.Unlock()
	}
	c.notify()
}

func (c *AdminController) applyMessageLocked(m *model.ChatMessage) {
	if c.loads > 0 {
		c.pending = append(c.pending, m)
	}
	c.lastMessages[m.SessionID] = model.Preview(m.Message)

	if s := c.findLocked(m.SessionID); s != nil && m.CreatedAt.After(s.LastMessageAt) {
		s.LastMessageAt = m.CreatedAt
		s.LastMessagePreview = model.Preview(m.Message)
		model.SortSessions(c.sessions)
	}

	if m.IsFromAdmin {
		return
	}
	if c.selected != nil && c.selected.ID == m.SessionID {
		return
	}
	set, ok := c.counted[m.SessionID]
	if !ok {
		set = make(map[string]struct{})
		c.counted[m.SessionID] = set
	}
	if _, seen := set[m.ID]; seen {
		return
	}
	set[m.ID] = struct{}{}
	c.unreadCounts[m.SessionID]++
}

func (c *AdminController) upsertLocked(s *model.ChatSession) {
	replaced := false
	for i, existing := range c.sessions {
		if existing.ID == s.ID {
			c.sessions[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		c.sessions = append([]*model.ChatSession{s}, c.sessions...)
		if _, ok := c.unreadCounts[s.ID]; !ok {
			c.unreadCounts[s.ID] = 0
		}
	}
	if s.LastMessagePreview != "" {
		c.lastMessages[s.ID] = s.LastMessagePreview
	}
	model.SortSessions(c.sessions)
}

func (c *AdminController) removeLocked(sessionID string) {
	for i, s := range c.sessions {
		if s.ID == sessionID {
			c.sessions = append(c.sessions[:i:i], c.sessions[i+1:]...)
			break
		}
	}
	delete(c.lastMessages, sessionID)
	delete(c.unreadCounts, sessionID)
	delete(c.counted, sessionID)
}

func (c *AdminController) findLocked(sessionID string) *model.ChatSession {
	for _, s := range c.sessions {
		if s.ID == sessionID {
			return s
		}
	}
	return nil
}

func (c *AdminController) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
	c.notify()
}

func (c *AdminController) clearError(msg string) {
	c.mu.Lock()
	if c.errMsg != msg {
		c.mu.Unlock()
		return
	}
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()
}

func (c *AdminController) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
