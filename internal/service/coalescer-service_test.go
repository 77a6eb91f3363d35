package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"permission-service/internal/events"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []*events.PermissionChangedEvent
	failures  int
}

func (s *recordingSink) PublishPermissionChanged(ctx context.Context, event *events.PermissionChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.delivered = append(s.delivered, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func (s *recordingSink) last() *events.PermissionChangedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delivered) == 0 {
		return nil
	}
	return s.delivered[len(s.delivered)-1]
}

func grantEvent(actorID, resourceID string, affected ...events.AffectedResource) *events.PermissionChangedEvent {
	event := events.NewPermissionChangedEvent(events.PermissionGranted, actorID, resourceID, "document")
	event.Affected = affected
	return event
}

func TestCoalescerMergesBurst(t *testing.T) {
	sink := &recordingSink{}
	coalescer := NewCoalescer(sink, nil, 50*time.Millisecond, time.Second)
	go coalescer.Run()
	defer coalescer.Stop()

	coalescer.Submit(grantEvent("alice", "w1", events.AffectedResource{ID: "d1", Level: "read"}))
	coalescer.Submit(grantEvent("alice", "w1", events.AffectedResource{ID: "d2", Level: "edit"}))
	coalescer.Submit(grantEvent("alice", "w1", events.AffectedResource{ID: "d1", Level: "share"}))

	time.Sleep(300 * time.Millisecond)

	if got := sink.count(); got != 1 {
		t.Fatalf("delivered %d notifications, want 1 merged", got)
	}

	merged := sink.last()
	if len(merged.Affected) != 2 {
		t.Fatalf("merged affected has %d entries, want 2 (union by id)", len(merged.Affected))
	}
	levels := make(map[string]string)
	for _, affected := range merged.Affected {
		levels[affected.ID] = affected.Level
	}
	if levels["d1"] != "share" {
		t.Errorf("d1 level = %q, want later write share", levels["d1"])
	}
	if levels["d2"] != "edit" {
		t.Errorf("d2 level = %q, want edit", levels["d2"])
	}
}

func TestCoalescerSeparateKeysSeparateNotifications(t *testing.T) {
	sink := &recordingSink{}
	coalescer := NewCoalescer(sink, nil, 30*time.Millisecond, time.Second)
	go coalescer.Run()
	defer coalescer.Stop()

	coalescer.Submit(grantEvent("alice", "w1"))
	coalescer.Submit(grantEvent("alice", "w2"))
	coalescer.Submit(grantEvent("bob", "w1"))

	time.Sleep(250 * time.Millisecond)

	if got := sink.count(); got != 3 {
		t.Fatalf("delivered %d notifications, want 3 distinct keys", got)
	}
}

// The quiescence window restarts on every submission: a steady trickle
// within the delay keeps deferring delivery.
func TestCoalescerTimerReset(t *testing.T) {
	sink := &recordingSink{}
	coalescer := NewCoalescer(sink, nil, 100*time.Millisecond, time.Second)
	go coalescer.Run()
	defer coalescer.Stop()

	coalescer.Submit(grantEvent("alice", "w1"))
	time.Sleep(60 * time.Millisecond)
	coalescer.Submit(grantEvent("alice", "w1"))

	// 120ms after the first submit: the original timer would have
	// fired, the restarted one must not have.
	time.Sleep(60 * time.Millisecond)
	if got := sink.count(); got != 0 {
		t.Fatalf("delivered %d notifications before quiescence", got)
	}

	time.Sleep(300 * time.Millisecond)
	if got := sink.count(); got != 1 {
		t.Fatalf("delivered %d notifications after quiescence, want 1", got)
	}
}

func TestCoalescerStopFlushesPending(t *testing.T) {
	sink := &recordingSink{}
	coalescer := NewCoalescer(sink, nil, time.Minute, time.Minute)
	go coalescer.Run()

	coalescer.Submit(grantEvent("alice", "w1"))
	coalescer.Submit(grantEvent("bob", "w2"))
	time.Sleep(20 * time.Millisecond)

	coalescer.Stop()

	if got := sink.count(); got != 2 {
		t.Fatalf("flushed %d notifications on stop, want 2", got)
	}
}

func TestCoalescerRetriesOnce(t *testing.T) {
	sink := &recordingSink{failures: 1}
	coalescer := NewCoalescer(sink, nil, 20*time.Millisecond, time.Second)
	go coalescer.Run()
	defer coalescer.Stop()

	coalescer.Submit(grantEvent("alice", "w1"))
	time.Sleep(200 * time.Millisecond)

	if got := sink.count(); got != 1 {
		t.Fatalf("delivered %d notifications, want 1 after retry", got)
	}
}

func TestCoalescerSubmitAfterStopIsDropped(t *testing.T) {
	sink := &recordingSink{}
	coalescer := NewCoalescer(sink, nil, 10*time.Millisecond, time.Second)
	go coalescer.Run()
	coalescer.Stop()

	// Must not block or panic.
	coalescer.Submit(grantEvent("alice", "w1"))

	time.Sleep(50 * time.Millisecond)
	if got := sink.count(); got != 0 {
		t.Fatalf("delivered %d notifications after stop", got)
	}
}
