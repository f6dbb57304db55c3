package chat

import (
	"Horizon/internal/model"
	"context"
	log "log/slog"
	"sync"
	"time"
)

const watermarkKeyPrefix = "admin_last_read_"

func WatermarkKey(sessionID string) string {
	return watermarkKeyPrefix + sessionID
}

// UnreadTracker 维护管理员侧的未读数。
// 已读水位线按会话存放在 ClientStorage，只有本模块会写入。
type UnreadTracker struct {
	store    SessionStore
	storage  ClientStorage
	realtime Realtime
	now      Clock

	mu          sync.Mutex
	unread      map[string]map[string]struct{} // sessionID -> 未读消息 ID
	total       int
	viewing     string
	recomputing int
	pending     []*model.ChatMessage // 重算期间到达的访客消息，合并时回放
	sub         Subscription
	closed      bool
	onChange    func()
}

// UnreadScan 一次按水位线扫描的结果
type UnreadScan struct {
	IDs          []string
	Watermark    time.Time
	HasWatermark bool
}

// Counts 该时间的访客消息是否算未读。水位线按毫秒对齐，同一毫秒内的消息算未读
func (s UnreadScan) Counts(createdAt time.Time) bool {
	return !s.HasWatermark || !createdAt.Before(s.Watermark)
}

func NewUnreadTracker(store SessionStore, storage ClientStorage, realtime Realtime, now Clock) *UnreadTracker {
	if now == nil {
		now = time.Now
	}
	return &UnreadTracker{
		store:    store,
		storage:  storage,
		realtime: realtime,
		now:      now,
		unread:   make(map[string]map[string]struct{}),
	}
}

func (t *UnreadTracker) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start 订阅全部消息以实时维护总数，订阅失败时退化为手动刷新
func (t *UnreadTracker) Start(ctx context.Context) error {
	if t.realtime != nil {
		sub, err := t.realtime.SubscribeToAllMessages(ctx, t.onMessage)
		if err != nil {
			log.WarnContext(ctx, "subscribe to all messages failed, unread badge not live", "err", err)
		} else {
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				closeSub(sub)
				return nil
			}
			old := t.sub
			t.sub = sub
			t.mu.Unlock()
			closeSub(old)
		}
	}
	return t.Refresh(ctx)
}

// ComputeUnreadForSession 水位线之后的访客消息数，无水位线时全部算未读
func (t *UnreadTracker) ComputeUnreadForSession(ctx context.Context, sessionID string) (int, error) {
	ids, err := t.UnreadMessageIDs(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// UnreadMessageIDs 返回未读的访客消息 ID
func (t *UnreadTracker) UnreadMessageIDs(ctx context.Context, sessionID string) ([]string, error) {
	scan, err := t.ScanSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return scan.IDs, nil
}

// ScanSession 读取水位线并列出其后的访客消息
func (t *UnreadTracker) ScanSession(ctx context.Context, sessionID string) (UnreadScan, error) {
	msgs, err := t.store.GetMessages(ctx, sessionID)
	if err != nil {
		return UnreadScan{}, err
	}
	watermark, ok, err := t.watermark(ctx, sessionID)
	if err != nil {
		return UnreadScan{}, err
	}

	scan := UnreadScan{IDs: make([]string, 0), Watermark: watermark, HasWatermark: ok}
	for _, m := range msgs {
		if !m.IsFromAdmin && scan.Counts(m.CreatedAt) {
			scan.IDs = append(scan.IDs, m.ID)
		}
	}
	return scan, nil
}

// MarkSessionRead 写入水位线，然后全量重算总数。
// 水位线不早于会话最后一条消息的下一毫秒，已经存在的消息不会因同毫秒而重新变成未读
func (t *UnreadTracker) MarkSessionRead(ctx context.Context, sessionID string) error {
	var seen time.Time
	if s, err := t.store.GetSession(ctx, sessionID); err == nil {
		seen = s.LastMessageAt
	}
	if err := t.advanceWatermark(ctx, sessionID, seen); err != nil {
		return err
	}
	return t.Refresh(ctx)
}

// MarkAllRead 总数清零并为每个 active 会话写入水位线，刷新页面后结果一致
func (t *UnreadTracker) MarkAllRead(ctx context.Context) error {
	t.mu.Lock()
	t.unread = make(map[string]map[string]struct{})
	t.total = 0
	t.mu.Unlock()
	t.notify()

	sessions, err := t.store.ListSessions(ctx, model.SessionActive)
	if err != nil {
		return err
	}
	var firstErr error
	for _, s := range sessions {
		if err = t.advanceWatermark(ctx, s.ID, s.LastMessageAt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Refresh 对所有 active 会话重新计算。
// 计算期间实时到达的消息先记入 pending，替换结果时按各会话的水位线回放，不会丢失
func (t *UnreadTracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	t.recomputing++
	t.mu.Unlock()

	sessions, err := t.store.ListSessions(ctx, model.SessionActive)
	if err != nil {
		t.mu.Lock()
		t.finishRecomputeLocked()
		t.mu.Unlock()
		return err
	}

	unread := make(map[string]map[string]struct{}, len(sessions))
	scans := make(map[string]UnreadScan, len(sessions))
	for _, s := range sessions {
		scan, err := t.ScanSession(ctx, s.ID)
		if err != nil {
			log.WarnContext(ctx, "compute unread failed", "sessionID", s.ID, "err", err)
			continue
		}
		set := make(map[string]struct{}, len(scan.IDs))
		for _, id := range scan.IDs {
			set[id] = struct{}{}
		}
		unread[s.ID] = set
		scans[s.ID] = scan
	}

	t.mu.Lock()
	for _, m := range t.pending {
		if m.SessionID == t.viewing {
			continue
		}
		if scan, ok := scans[m.SessionID]; ok && !scan.Counts(m.CreatedAt) {
			continue
		}
		set, ok := unread[m.SessionID]
		if !ok {
			set = make(map[string]struct{})
			unread[m.SessionID] = set
		}
		set[m.ID] = struct{}{}
	}
	total := 0
	for _, set := range unread {
		total += len(set)
	}
	t.unread = unread
	t.total = total
	t.finishRecomputeLocked()
	t.mu.Unlock()
	t.notify()
	return nil
}

func (t *UnreadTracker) finishRecomputeLocked() {
	t.recomputing--
	if t.recomputing <= 0 {
		t.recomputing = 0
		t.pending = nil
	}
}

// SetViewing 标记管理员正在查看的会话，其新消息直接推进水位线
func (t *UnreadTracker) SetViewing(sessionID string) {
	t.mu.Lock()
	t.viewing = sessionID
	t.mu.Unlock()
}

func (t *UnreadTracker) TotalUnread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *UnreadTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	sub := t.sub
	t.sub = nil
	t.onChange = nil
	t.mu.Unlock()
	closeSub(sub)
}

func (t *UnreadTracker) onMessage(m *model.ChatMessage) {
	if m == nil || m.IsFromAdmin {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if m.SessionID == t.viewing {
		t.mu.Unlock()
		if err := t.advanceWatermark(context.Background(), m.SessionID, m.CreatedAt); err != nil {
			log.Warn("advance watermark failed", "sessionID", m.SessionID, "err", err)
		}
		return
	}
	if t.recomputing > 0 {
		t.pending = append(t.pending, m)
	}
	set, ok := t.unread[m.SessionID]
	if !ok {
		set = make(map[string]struct{})
		t.unread[m.SessionID] = set
	}
	if _, seen := set[m.ID]; seen {
		t.mu.Unlock()
		return
	}
	set[m.ID] = struct{}{}
	t.total++
	t.mu.Unlock()
	t.notify()
}

func (t *UnreadTracker) watermark(ctx context.Context, sessionID string) (time.Time, bool, error) {
	raw, ok, err := t.storage.Get(ctx, WatermarkKey(sessionID))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		log.WarnContext(ctx, "invalid read watermark, treating as unread", "sessionID", sessionID, "value", raw)
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

// advanceWatermark 写入按毫秒对齐的水位线，取当前时间与 seen 之后一毫秒中较晚者
func (t *UnreadTracker) advanceWatermark(ctx context.Context, sessionID string, seen time.Time) error {
	return t.writeWatermark(ctx, sessionID, nextWatermark(t.now(), seen))
}

func nextWatermark(now, seen time.Time) time.Time {
	wm := now.UTC().Truncate(time.Millisecond)
	if !seen.IsZero() && !seen.Before(wm) {
		wm = seen.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return wm
}

func (t *UnreadTracker) writeWatermark(ctx context.Context, sessionID string, ts time.Time) error {
	return t.storage.Set(ctx, WatermarkKey(sessionID), ts.UTC().Format(time.RFC3339Nano))
}

func (t *UnreadTracker) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
