package session

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestStore(ttl time.Duration) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(ttl)
	s.now = clock.now
	return s, clock
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(time.Hour)

	token, err := s.Create(ctx, "sync-api")
	if err != nil {
		t.Fatal(err)
	}
	if len(token) != 2*tokenBytes {
		t.Errorf("token length = %d", len(token))
	}

	principal, ok, err := s.Validate(ctx, token)
	if err != nil || !ok || principal != "sync-api" {
		t.Fatalf("Validate() = %q, %v, %v", principal, ok, err)
	}

	clock.t = clock.t.Add(time.Hour)
	if _, ok, _ := s.Validate(ctx, token); ok {
		t.Error("token valid at expiry")
	}
}

func TestMemoryStoreRevoke(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(time.Hour)

	token, _ := s.Create(ctx, "sync-api")
	if err := s.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Validate(ctx, token); ok {
		t.Error("revoked token still valid")
	}
	if _, ok, _ := s.Validate(ctx, "never-issued"); ok {
		t.Error("unknown token valid")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(time.Hour)

	old, _ := s.Create(ctx, "a")
	clock.t = clock.t.Add(30 * time.Minute)
	fresh, _ := s.Create(ctx, "b")
	clock.t = clock.t.Add(45 * time.Minute)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, ok := s.sessions[old]; ok {
		t.Error("expired session kept")
	}
	if _, ok, _ := s.Validate(ctx, fresh); !ok {
		t.Error("live session swept")
	}
}

func TestMemoryStoreRunStopsWithContext(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
