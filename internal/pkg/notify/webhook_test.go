package notify

import (
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestSessionWebhookPostsCreatedOnly(t *testing.T) {
	var calls atomic.Int32
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewSessionWebhook(srv.URL)
	now := time.Now().UTC()
	session := &model.ChatSession{ID: "s1", VisitorID: "visitor_1", Status: model.SessionActive, CreatedAt: now}
	ctx := context.Background()

	_ = hook.PublishSession(ctx, chat.SessionChange{Op: chat.SessionUpdated, Session: session})
	_ = hook.PublishMessage(ctx, &model.ChatMessage{ID: "m1", SessionID: "s1"})
	if err := hook.PublishSession(ctx, chat.SessionChange{Op: chat.SessionCreated, Session: session}); err != nil {
		t.Fatalf("PublishSession() error = %v", err)
	}
	hook.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("webhook calls = %d, want 1", n)
	}
	if got.Event != "chat.session.created" || got.Session == nil || got.Session.ID != "s1" {
		t.Errorf("payload = %+v", got)
	}
}
