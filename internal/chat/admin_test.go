package chat

import (
	"Horizon/internal/model"
	"context"
	"strings"
	"testing"
	"time"
)

func sendAs(t *testing.T, h *harness, sessionID, body string, fromAdmin bool) {
	t.Helper()
	name := "Visitor"
	if fromAdmin {
		name = "Admin"
	}
	_, err := h.store.SendMessage(context.Background(), model.NewMessage{
		SessionID: sessionID, Body: body, SenderName: name, IsFromAdmin: fromAdmin,
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
}

func TestUnreadCountsDownAndUp(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, _ := h.store.CreateSession(ctx, "visitor_u", nil)
	for _, body := range []string{"one", "two", "three"} {
		sendAs(t, h, s.ID, body, false)
	}
	sendAs(t, h, s.ID, "reply", true)

	tracker := NewUnreadTracker(h.store, newMemStorage(), h.bus, h.clock.Now)
	defer tracker.Close()
	if err := tracker.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := tracker.TotalUnread(); got != 3 {
		t.Fatalf("TotalUnread() = %d, want 3", got)
	}

	if err := tracker.MarkSessionRead(ctx, s.ID); err != nil {
		t.Fatalf("MarkSessionRead() error = %v", err)
	}
	if got := tracker.TotalUnread(); got != 0 {
		t.Fatalf("after mark read = %d, want 0", got)
	}

	h.bus.redeliver = true
	sendAs(t, h, s.ID, "four", false)
	if got := tracker.TotalUnread(); got != 1 {
		t.Errorf("after new message = %d, want 1", got)
	}
	if n, _ := tracker.ComputeUnreadForSession(ctx, s.ID); n != 1 {
		t.Errorf("ComputeUnreadForSession() = %d, want 1", n)
	}
}

func TestMarkAllReadPersists(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	storage := newMemStorage()
	a, _ := h.store.CreateSession(ctx, "visitor_a", nil)
	b, _ := h.store.CreateSession(ctx, "visitor_b", nil)
	sendAs(t, h, a.ID, "a1", false)
	sendAs(t, h, b.ID, "b1", false)

	tracker := NewUnreadTracker(h.store, storage, nil, h.clock.Now)
	_ = tracker.Refresh(ctx)
	if got := tracker.TotalUnread(); got != 2 {
		t.Fatalf("TotalUnread() = %d, want 2", got)
	}
	if err := tracker.MarkAllRead(ctx); err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}

	reloaded := NewUnreadTracker(h.store, storage, nil, h.clock.Now)
	_ = reloaded.Refresh(ctx)
	if got := reloaded.TotalUnread(); got != 0 {
		t.Errorf("after reload = %d, want 0", got)
	}
}

func TestAdminSelectionIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a, _ := h.store.CreateSession(ctx, "visitor_a", nil)
	b, _ := h.store.CreateSession(ctx, "visitor_b", nil)
	sendAs(t, h, a.ID, "from a", false)
	sendAs(t, h, b.ID, "from b", false)

	admin, tracker := h.admin(newMemStorage())
	defer admin.Close()
	defer tracker.Close()
	_ = tracker.Start(ctx)
	if err := admin.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := admin.SelectSession(ctx, a.ID); err != nil {
		t.Fatalf("SelectSession(a) error = %v", err)
	}
	admin.mu.Lock()
	staleGen := admin.threadGen
	admin.mu.Unlock()

	if err := admin.SelectSession(ctx, b.ID); err != nil {
		t.Fatalf("SelectSession(b) error = %v", err)
	}

	// a late callback from the torn-down thread subscription
	late := h.base.insertMessage(a.ID, "late for a", false)
	admin.onThreadMessage(staleGen, a.ID, late)
	sendAs(t, h, a.ID, "another for a", false)

	snap := admin.Snapshot()
	if snap.SelectedSession == nil || snap.SelectedSession.ID != b.ID {
		t.Fatalf("selected = %+v, want %s", snap.SelectedSession, b.ID)
	}
	for _, m := range snap.Messages {
		if m.SessionID != b.ID {
			t.Errorf("thread contains message %s from session %s", m.ID, m.SessionID)
		}
	}
	if snap.UnreadCounts[b.ID] != 0 {
		t.Errorf("unread for selected = %d, want 0", snap.UnreadCounts[b.ID])
	}
	if snap.UnreadCounts[a.ID] != 1 {
		t.Errorf("unread for a = %d, want 1", snap.UnreadCounts[a.ID])
	}
}

func TestAdminCloseSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a, _ := h.store.CreateSession(ctx, "visitor_a", nil)
	b, _ := h.store.CreateSession(ctx, "visitor_b", nil)
	sendAs(t, h, a.ID, "hello", false)

	admin, tracker := h.admin(newMemStorage())
	defer admin.Close()
	_ = tracker.Start(ctx)
	_ = admin.Start(ctx)
	_ = admin.SelectSession(ctx, a.ID)

	if err := admin.CloseSession(ctx, a.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	snap := admin.Snapshot()
	if snap.SelectedSession != nil || len(snap.Messages) != 0 {
		t.Errorf("selection not cleared: %+v, %d messages", snap.SelectedSession, len(snap.Messages))
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != b.ID {
		t.Errorf("roster = %+v, want only %s", snap.Sessions, b.ID)
	}
	if _, ok := snap.UnreadCounts[a.ID]; ok {
		t.Error("closed session still has an unread entry")
	}
	stored, _ := h.base.GetSession(ctx, a.ID)
	if stored.Status != model.SessionClosed {
		t.Errorf("stored status = %s, want closed", stored.Status)
	}
}

func TestAdminLoadSessionsFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.base.failList = true
	admin, _ := h.admin(newMemStorage())
	defer admin.Close()

	if err := admin.LoadSessions(ctx); err == nil {
		t.Fatal("LoadSessions() expected error")
	}
	if got := admin.Snapshot().Error; got != errMsgLoadSessions {
		t.Errorf("error = %q, want %q", got, errMsgLoadSessions)
	}
}

func TestAdminPicksUpSessionFromFirstMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	admin, _ := h.admin(newMemStorage())
	defer admin.Close()
	_ = admin.Start(ctx)

	// session created without a broadcast, first thing the inbox hears is the message
	s, _ := h.base.CreateSession(ctx, "visitor_quiet", nil)
	sendAs(t, h, s.ID, "anyone there?", false)

	snap := admin.Snapshot()
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != s.ID {
		t.Fatalf("roster = %+v, want %s", snap.Sessions, s.ID)
	}
	if snap.UnreadCounts[s.ID] != 1 {
		t.Errorf("unread = %d, want 1", snap.UnreadCounts[s.ID])
	}
	if snap.LastMessages[s.ID] != "anyone there?" {
		t.Errorf("preview = %q", snap.LastMessages[s.ID])
	}
}

func TestIELTSEnquiryEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	admin, tracker := h.admin(newMemStorage())
	defer admin.Close()
	defer tracker.Close()
	_ = tracker.Start(ctx)
	_ = admin.Start(ctx)

	visitor := h.visitor(newMemStorage())
	defer visitor.Close()
	_ = visitor.Mount(ctx)
	session, err := visitor.InitializeSession(ctx, &model.VisitorDetails{Name: "Priya", Email: "priya@example.com"})
	if err != nil {
		t.Fatalf("InitializeSession() error = %v", err)
	}
	if err = visitor.SendMessage(ctx, "Do you offer IELTS coaching?", "", "", ""); err != nil {
		t.Fatalf("visitor SendMessage() error = %v", err)
	}

	snap := admin.Snapshot()
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != session.ID {
		t.Fatalf("admin roster = %+v", snap.Sessions)
	}
	if snap.UnreadCounts[session.ID] != 1 || tracker.TotalUnread() != 1 {
		t.Errorf("unread = %d total = %d, want 1/1", snap.UnreadCounts[session.ID], tracker.TotalUnread())
	}
	if !strings.Contains(snap.LastMessages[session.ID], "IELTS") {
		t.Errorf("preview = %q", snap.LastMessages[session.ID])
	}

	if err = admin.SelectSession(ctx, session.ID); err != nil {
		t.Fatalf("SelectSession() error = %v", err)
	}
	if tracker.TotalUnread() != 0 {
		t.Errorf("total after select = %d, want 0", tracker.TotalUnread())
	}
	if err = admin.SendMessage(ctx, "Yes, weekday and weekend batches.", ""); err != nil {
		t.Fatalf("admin SendMessage() error = %v", err)
	}

	vs := visitor.Snapshot()
	if len(vs.Messages) != 2 {
		t.Fatalf("visitor messages = %d, want 2", len(vs.Messages))
	}
	if vs.Messages[0].SenderName != "Priya" || vs.Messages[0].SenderEmail != "priya@example.com" {
		t.Errorf("visitor message = %+v", vs.Messages[0])
	}
	if !vs.Messages[1].IsFromAdmin || vs.Messages[1].SenderName != "Admin" {
		t.Errorf("reply = %+v", vs.Messages[1])
	}

	as := admin.Snapshot()
	if len(as.Messages) != 2 {
		t.Errorf("admin thread = %d messages, want 2", len(as.Messages))
	}
	if as.UnreadCounts[session.ID] != 0 || tracker.TotalUnread() != 0 {
		t.Errorf("unread after reply = %d/%d, want 0/0", as.UnreadCounts[session.ID], tracker.TotalUnread())
	}
}

func TestUnreadKeepsMessagesArrivingDuringRecompute(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a, _ := h.store.CreateSession(ctx, "visitor_a", nil)
	b, _ := h.store.CreateSession(ctx, "visitor_b", nil)
	sendAs(t, h, a.ID, "a1", false)
	sendAs(t, h, b.ID, "b1", false)

	hooked := newHookStore(h.store)
	tracker := NewUnreadTracker(hooked, newMemStorage(), h.bus, h.clock.Now)
	admin := NewAdminController(hooked, h.bus, tracker)
	defer admin.Close()
	defer tracker.Close()
	_ = tracker.Start(ctx)
	if err := admin.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// selecting a recomputes every session; b gets a new message right after its history is read
	hooked.onceAfterGetMessages(b.ID, func() { sendAs(t, h, b.ID, "b2", false) })
	if err := admin.SelectSession(ctx, a.ID); err != nil {
		t.Fatalf("SelectSession() error = %v", err)
	}
	if n, _ := tracker.ComputeUnreadForSession(ctx, b.ID); n != 2 {
		t.Fatalf("ComputeUnreadForSession(b) = %d, want 2", n)
	}
	if got := tracker.TotalUnread(); got != 2 {
		t.Errorf("TotalUnread() = %d, want 2", got)
	}

	hooked.onceAfterGetMessages(b.ID, func() { sendAs(t, h, b.ID, "b3", false) })
	if err := admin.RefreshSessions(ctx); err != nil {
		t.Fatalf("RefreshSessions() error = %v", err)
	}
	snap := admin.Snapshot()
	if snap.UnreadCounts[b.ID] != 3 {
		t.Errorf("unreadCounts[b] = %d, want 3", snap.UnreadCounts[b.ID])
	}
	if snap.UnreadCounts[a.ID] != 0 {
		t.Errorf("unreadCounts[a] = %d, want 0 for the selected session", snap.UnreadCounts[a.ID])
	}
	if snap.LastMessages[b.ID] != "b3" {
		t.Errorf("preview[b] = %q, want b3", snap.LastMessages[b.ID])
	}
	if snap.Loading {
		t.Error("still loading after refresh")
	}
	if got := tracker.TotalUnread(); got != 3 {
		t.Errorf("TotalUnread() = %d, want 3", got)
	}
}

func TestAdminSelectedSessionClosedElsewhere(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a, _ := h.store.CreateSession(ctx, "visitor_a", nil)
	b, _ := h.store.CreateSession(ctx, "visitor_b", nil)
	sendAs(t, h, a.ID, "hello", false)

	admin, tracker := h.admin(newMemStorage())
	defer admin.Close()
	defer tracker.Close()
	_ = tracker.Start(ctx)
	_ = admin.Start(ctx)
	if err := admin.SelectSession(ctx, a.ID); err != nil {
		t.Fatalf("SelectSession() error = %v", err)
	}

	// closed through the REST endpoint or another tab, not this controller
	if err := h.store.CloseSession(ctx, a.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}

	snap := admin.Snapshot()
	if snap.SelectedSession != nil || len(snap.Messages) != 0 {
		t.Errorf("selection not cleared: %+v, %d messages", snap.SelectedSession, len(snap.Messages))
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != b.ID {
		t.Errorf("roster = %+v, want only %s", snap.Sessions, b.ID)
	}
	admin.mu.Lock()
	threadSub := admin.threadSub
	admin.mu.Unlock()
	if threadSub != nil {
		t.Error("thread subscription still attached")
	}
	tracker.mu.Lock()
	viewing := tracker.viewing
	tracker.mu.Unlock()
	if viewing != "" {
		t.Errorf("tracker still viewing %q", viewing)
	}

	if err := admin.SendMessage(ctx, "are you still there?", ""); err != nil {
		t.Errorf("SendMessage() with nothing selected = %v", err)
	}
	if got := admin.Snapshot().Error; got != "" {
		t.Errorf("error = %q, want empty", got)
	}
}

func TestAdminIgnoresStaleSessionEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a, _ := h.store.CreateSession(ctx, "visitor_a", nil)
	b, _ := h.store.CreateSession(ctx, "visitor_b", nil)

	admin, _ := h.admin(newMemStorage())
	defer admin.Close()
	_ = admin.Start(ctx)

	early, _ := h.base.GetSession(ctx, a.ID)
	sendAs(t, h, a.ID, "latest", false)
	var want time.Time
	for _, s := range admin.Snapshot().Sessions {
		if s.ID == a.ID {
			want = s.LastMessageAt
		}
	}

	// a redelivered event from before the message
	_ = h.bus.PublishSession(ctx, SessionChange{Op: SessionUpdated, Session: early})
	for _, s := range admin.Snapshot().Sessions {
		if s.ID == a.ID && !s.LastMessageAt.Equal(want) {
			t.Errorf("lastMessageAt rolled back to %v, want %v", s.LastMessageAt, want)
		}
	}

	beforeClose, _ := h.base.GetSession(ctx, b.ID)
	_ = h.store.CloseSession(ctx, b.ID)
	_ = h.bus.PublishSession(ctx, SessionChange{Op: SessionUpdated, Session: beforeClose})
	for _, s := range admin.Snapshot().Sessions {
		if s.ID == b.ID {
			t.Error("closed session re-added by a late active event")
		}
	}
}

func TestWatermarkMillisecondBoundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := base.Add(300 * time.Microsecond)

	if got := nextWatermark(now, time.Time{}); !got.Equal(base) {
		t.Errorf("nextWatermark(now) = %v, want %v", got, base)
	}
	// the last message shares the millisecond: it was seen, so the watermark moves past it
	if got := nextWatermark(now, base); !got.Equal(base.Add(time.Millisecond)) {
		t.Errorf("nextWatermark(seen) = %v, want %v", got, base.Add(time.Millisecond))
	}

	scan := UnreadScan{Watermark: base, HasWatermark: true}
	if !scan.Counts(base) {
		t.Error("message stored in the watermark millisecond counted as read")
	}
	if scan.Counts(base.Add(-time.Millisecond)) {
		t.Error("message before the watermark counted as unread")
	}
	if !(UnreadScan{}).Counts(base) {
		t.Error("no watermark must count every visitor message")
	}
}

func TestUnreadCountsMessageInWatermarkMillisecond(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, _ := h.store.CreateSession(ctx, "visitor_ms", nil)
	storage := newMemStorage()
	tracker := NewUnreadTracker(h.store, storage, nil, h.clock.Now)

	msg := h.base.insertMessage(s.ID, "same millisecond", false)
	// watermark written a fraction of a millisecond before the stored timestamp was truncated
	_ = tracker.writeWatermark(ctx, s.ID, nextWatermark(msg.CreatedAt.Add(400*time.Microsecond), time.Time{}))

	if n, _ := tracker.ComputeUnreadForSession(ctx, s.ID); n != 1 {
		t.Errorf("ComputeUnreadForSession() = %d, want 1", n)
	}
}
