package chat

import (
	"Horizon/internal/model"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock 每次调用前进一秒
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newMemStorage() *MemoryStorage {
	return NewMemoryStorage()
}

// memStore 内存版 SessionStore，返回值都是拷贝
type memStore struct {
	mu       sync.Mutex
	clock    *fakeClock
	seq      int
	sessions map[string]*model.ChatSession
	messages map[string][]*model.ChatMessage
	failSend bool
	failList bool
	failGet  bool
	// findDelay 放大 find 与 create 之间的竞争窗口
	findDelay time.Duration
}

func newMemStore(clock *fakeClock) *memStore {
	return &memStore{
		clock:    clock,
		sessions: make(map[string]*model.ChatSession),
		messages: make(map[string][]*model.ChatMessage),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

func (s *memStore) FindActiveSession(_ context.Context, visitorID string) (*model.ChatSession, error) {
	if s.findDelay > 0 {
		time.Sleep(s.findDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []*model.ChatSession
	for _, sess := range s.sessions {
		if sess.VisitorID == visitorID && sess.Status == model.SessionActive {
			found = append(found, sess)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	model.SortSessions(found)
	return found[0].Clone(), nil
}

func (s *memStore) CreateSession(_ context.Context, visitorID string, details *model.VisitorDetails) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := model.NewChatSession(visitorID, details, s.clock.Now())
	sess.ID = s.nextID("sess")
	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

func (s *memStore) GetSession(_ context.Context, sessionID string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *memStore) UpdateSessionDetails(_ context.Context, sessionID string, details model.VisitorDetails) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	d := details.Normalize()
	if d.Name != "" {
		sess.VisitorName = d.Name
	}
	if d.Email != "" {
		sess.VisitorEmail = d.Email
	}
	if d.Phone != "" {
		sess.VisitorPhone = d.Phone
	}
	return sess.Clone(), nil
}

func (s *memStore) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Status = model.SessionClosed
	return nil
}

func (s *memStore) ListSessions(_ context.Context, status model.SessionStatus) ([]*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errBoom
	}
	out := make([]*model.ChatSession, 0)
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, sess.Clone())
		}
	}
	model.SortSessions(out)
	return out, nil
}

func (s *memStore) GetMessages(_ context.Context, sessionID string) ([]*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errBoom
	}
	out := make([]*model.ChatMessage, 0, len(s.messages[sessionID]))
	for _, m := range s.messages[sessionID] {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

func (s *memStore) SendMessage(_ context.Context, in model.NewMessage) (*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return nil, errBoom
	}
	sess, ok := s.sessions[in.SessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	msg := in.Build(s.clock.Now())
	msg.ID = s.nextID("msg")
	s.messages[in.SessionID] = append(s.messages[in.SessionID], msg)
	sess.LastMessageAt = msg.CreatedAt
	sess.LastMessagePreview = model.Preview(msg.Message)
	c := *msg
	return &c, nil
}

// insertMessage 直接写入一条消息，不经过广播
func (s *memStore) insertMessage(sessionID, body string, fromAdmin bool) *model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := model.NewMessage{SessionID: sessionID, Body: body, SenderName: "x", IsFromAdmin: fromAdmin}.Build(s.clock.Now())
	msg.ID = s.nextID("msg")
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	c := *msg
	return &c
}

// memBus 同步投递的内存实时通道，同时实现 Realtime 与 Publisher
type memBus struct {
	mu        sync.Mutex
	nextID    int
	msgSubs   map[int]msgSub
	sessSubs  map[int]SessionHandler
	failSubs  bool
	redeliver bool
}

type msgSub struct {
	sessionID string // 空表示全部
	fn        MessageHandler
}

type memSubscription struct {
	once  sync.Once
	close func()
}

func (s *memSubscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.close)
}

func newMemBus() *memBus {
	return &memBus{msgSubs: make(map[int]msgSub), sessSubs: make(map[int]SessionHandler)}
}

func (b *memBus) SubscribeToMessages(_ context.Context, sessionID string, fn MessageHandler) (Subscription, error) {
	return b.addMsgSub(sessionID, fn)
}

func (b *memBus) SubscribeToAllMessages(_ context.Context, fn MessageHandler) (Subscription, error) {
	return b.addMsgSub("", fn)
}

func (b *memBus) addMsgSub(sessionID string, fn MessageHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSubs {
		return nil, errBoom
	}
	b.nextID++
	id := b.nextID
	b.msgSubs[id] = msgSub{sessionID: sessionID, fn: fn}
	return &memSubscription{close: func() {
		b.mu.Lock()
		delete(b.msgSubs, id)
		b.mu.Unlock()
	}}, nil
}

func (b *memBus) SubscribeToSessions(_ context.Context, fn SessionHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSubs {
		return nil, errBoom
	}
	b.nextID++
	id := b.nextID
	b.sessSubs[id] = fn
	return &memSubscription{close: func() {
		b.mu.Lock()
		delete(b.sessSubs, id)
		b.mu.Unlock()
	}}, nil
}

func (b *memBus) PublishMessage(_ context.Context, msg *model.ChatMessage) error {
	b.mu.Lock()
	var fns []MessageHandler
	for _, s := range b.msgSubs {
		if s.sessionID == "" || s.sessionID == msg.SessionID {
			fns = append(fns, s.fn)
		}
	}
	redeliver := b.redeliver
	b.mu.Unlock()

	for _, fn := range fns {
		c := *msg
		fn(&c)
		if redeliver {
			c2 := *msg
			fn(&c2)
		}
	}
	return nil
}

func (b *memBus) PublishSession(_ context.Context, change SessionChange) error {
	b.mu.Lock()
	fns := make([]SessionHandler, 0, len(b.sessSubs))
	for _, fn := range b.sessSubs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(SessionChange{Op: change.Op, Session: change.Session.Clone()})
	}
	return nil
}

// deliver 模拟一条游离的推送（比如订阅关闭前已在途的消息）
func (b *memBus) deliver(msg *model.ChatMessage) {
	_ = b.PublishMessage(context.Background(), msg)
}

func (b *memBus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgSubs) + len(b.sessSubs)
}

type harness struct {
	clock *fakeClock
	base  *memStore
	bus   *memBus
	store SessionStore
	lock  *KeyedMutex
}

func newHarness() *harness {
	clock := newFakeClock()
	base := newMemStore(clock)
	bus := newMemBus()
	return &harness{
		clock: clock,
		base:  base,
		bus:   bus,
		store: NewNotifyingStore(base, bus),
		lock:  NewKeyedMutex(),
	}
}

func (h *harness) visitor(storage ClientStorage) *VisitorController {
	return NewVisitorController(h.store, h.bus, h.lock, NewIdentity(storage, h.clock.Now))
}

func (h *harness) admin(storage ClientStorage) (*AdminController, *UnreadTracker) {
	tracker := NewUnreadTracker(h.store, storage, h.bus, h.clock.Now)
	return NewAdminController(h.store, h.bus, tracker), tracker
}

// hookStore 在某个会话的 GetMessages 返回后执行一次回调，用于在“读完历史、尚未替换结果”之间插入消息
type hookStore struct {
	SessionStore
	mu       sync.Mutex
	afterGet map[string]func()
}

func newHookStore(base SessionStore) *hookStore {
	return &hookStore{SessionStore: base, afterGet: make(map[string]func())}
}

func (s *hookStore) onceAfterGetMessages(sessionID string, fn func()) {
	s.mu.Lock()
	s.afterGet[sessionID] = fn
	s.mu.Unlock()
}

func (s *hookStore) GetMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	msgs, err := s.SessionStore.GetMessages(ctx, sessionID)
	s.mu.Lock()
	fn := s.afterGet[sessionID]
	delete(s.afterGet, sessionID)
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return msgs, err
}
