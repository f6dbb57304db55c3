package chat

import (
	"context"
	"regexp"
	"testing"
)

var visitorIDPattern = regexp.MustCompile(`^visitor_\d+_[0-9a-z]{9}$`)

func TestGetOrCreateVisitorIDIsStable(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	identity := NewIdentity(storage, newFakeClock().Now)

	first, err := identity.GetOrCreateVisitorID(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateVisitorID() error = %v", err)
	}
	if !visitorIDPattern.MatchString(first) {
		t.Errorf("visitor id %q does not match %s", first, visitorIDPattern)
	}

	for i := 0; i < 3; i++ {
		again, err := NewIdentity(storage, nil).GetOrCreateVisitorID(ctx)
		if err != nil {
			t.Fatalf("GetOrCreateVisitorID() error = %v", err)
		}
		if again != first {
			t.Errorf("call %d: got %q, want %q", i, again, first)
		}
	}

	stored, ok, _ := storage.Get(ctx, VisitorIDKey)
	if !ok || stored != first {
		t.Errorf("stored id = %q (%v), want %q", stored, ok, first)
	}
}

func TestGetOrCreateVisitorIDPerContext(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	a, _ := NewIdentity(newMemStorage(), clock.Now).GetOrCreateVisitorID(ctx)
	b, _ := NewIdentity(newMemStorage(), clock.Now).GetOrCreateVisitorID(ctx)
	if a == b {
		t.Errorf("separate contexts produced the same id %q", a)
	}
}
