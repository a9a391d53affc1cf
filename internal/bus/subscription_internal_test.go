package bus

import (
	"context"
	"testing"
)

// These tests exercise enqueue's FullMode branches directly against the
// queue slice, without racing the pump goroutine, so eviction behavior is
// deterministic.

type kind int
type payload struct{ ID string }

func newTestSub(capacity int, mode FullMode) *subscription[kind, payload] {
	return &subscription[kind, payload]{
		id:       1,
		capacity: capacity,
		mode:     mode,
		notify:   make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		out:      make(chan Envelope[kind, payload]),
		done:     make(chan struct{}),
	}
}

func TestEnqueueDropOldestWhitebox(t *testing.T) {
	s := newTestSub(2, FullModeDropOldest)
	ctx := context.Background()
	for i, id := range []string{"1", "2", "3"} {
		if err := s.enqueue(ctx, Envelope[kind, payload]{Payload: payload{ID: id}}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if len(s.queue) != 2 {
		t.Fatalf("expected queue len 2, got %d", len(s.queue))
	}
	if s.queue[0].Payload.ID != "2" || s.queue[1].Payload.ID != "3" {
		t.Fatalf("expected [2 3], got [%s %s]", s.queue[0].Payload.ID, s.queue[1].Payload.ID)
	}
}

func TestEnqueueDropNewestWhitebox(t *testing.T) {
	s := newTestSub(2, FullModeDropNewest)
	ctx := context.Background()
	for i, id := range []string{"1", "2", "3"} {
		if err := s.enqueue(ctx, Envelope[kind, payload]{Payload: payload{ID: id}}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if len(s.queue) != 2 {
		t.Fatalf("expected queue len 2, got %d", len(s.queue))
	}
	if s.queue[0].Payload.ID != "1" || s.queue[1].Payload.ID != "3" {
		t.Fatalf("expected [1 3] (newest slot replaced), got [%s %s]", s.queue[0].Payload.ID, s.queue[1].Payload.ID)
	}
}

func TestEnqueueDropWriteWhitebox(t *testing.T) {
	s := newTestSub(2, FullModeDropWrite)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		if err := s.enqueue(ctx, Envelope[kind, payload]{Payload: payload{ID: id}}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if len(s.queue) != 2 {
		t.Fatalf("expected queue len 2, got %d", len(s.queue))
	}
	if s.queue[0].Payload.ID != "1" || s.queue[1].Payload.ID != "2" {
		t.Fatalf("expected [1 2] (incoming write dropped), got [%s %s]", s.queue[0].Payload.ID, s.queue[1].Payload.ID)
	}
}
