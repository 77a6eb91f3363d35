package service

import (
	"context"
	"log"
	"time"

	"permission-service/internal/events"
	"permission-service/pkg/metrics"
)

const (
	defaultPublishDelay = 100 * time.Millisecond
	defaultDedupWindow  = 5 * time.Second
)

// NotificationSink receives merged change events. Delivery is
// fire-and-forget; a sink failure never reaches the mutation path.
type NotificationSink interface {
	PublishPermissionChanged(ctx context.Context, event *events.PermissionChangedEvent) error
}

// PendingEventStore mirrors pending merged events to a shared store so
// a restart within the dedup window does not lose them. Optional.
type PendingEventStore interface {
	SaveStructCached(ctx context.Context, key string, model any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type pendingEntry struct {
	event *events.PermissionChangedEvent
	timer *time.Timer
}

// Coalescer debounces-with-merge: rapid successive events for the same
// (type, actor, resource) key are merged and delivered once, a publish
// delay after the last submission. A single loop owns the pending map;
// submits and timer fires are serialized through its channels, so
// merge and dispatch never race.
type Coalescer struct {
	sink         NotificationSink
	pending      PendingEventStore
	publishDelay time.Duration
	dedupWindow  time.Duration

	submitCh chan *events.PermissionChangedEvent
	fireCh   chan string
	done     chan struct{}
	stopped  chan struct{}

	// owned by the run loop
	entries map[string]*pendingEntry
}

func NewCoalescer(sink NotificationSink, pending PendingEventStore, publishDelay, dedupWindow time.Duration) *Coalescer {
	if publishDelay <= 0 {
		publishDelay = defaultPublishDelay
	}
	if dedupWindow <= 0 {
		dedupWindow = defaultDedupWindow
	}
	return &Coalescer{
		sink:         sink,
		pending:      pending,
		publishDelay: publishDelay,
		dedupWindow:  dedupWindow,
		submitCh:     make(chan *events.PermissionChangedEvent, 64),
		fireCh:       make(chan string, 64),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		entries:      make(map[string]*pendingEntry),
	}
}

// Submit hands a raw change event to the coalescing loop. Events
// submitted after Stop are dropped.
func (c *Coalescer) Submit(event *events.PermissionChangedEvent) {
	select {
	case c.submitCh <- event:
	case <-c.done:
	}
}

// Run owns the pending-event map until Stop is called. Start it on its
// own goroutine.
func (c *Coalescer) Run() {
	defer close(c.stopped)
	for {
		select {
		case event := <-c.submitCh:
			c.merge(event)
		case key := <-c.fireCh:
			c.dispatch(key)
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Stop flushes every pending notification and waits for the loop to
// exit.
func (c *Coalescer) Stop() {
	close(c.done)
	<-c.stopped
}

func (c *Coalescer) merge(event *events.PermissionChangedEvent) {
	key := event.DedupKey()

	entry, ok := c.entries[key]
	if ok {
		entry.event.Merge(event)
		metrics.CoalescerMerges.Inc()
		// Cancel-and-restart: the quiescence window restarts from
		// the latest submission.
		entry.timer.Stop()
	} else {
		entry = &pendingEntry{event: event}
		c.entries[key] = entry
	}
	entry.timer = c.armTimer(key)

	c.persistPending(key, entry.event)
}

func (c *Coalescer) armTimer(key string) *time.Timer {
	return time.AfterFunc(c.publishDelay, func() {
		select {
		case c.fireCh <- key:
		case <-c.done:
		}
	})
}

func (c *Coalescer) dispatch(key string) {
	entry, ok := c.entries[key]
	if !ok {
		// Stopped timer that had already fired; the entry was
		// re-armed or flushed.
		return
	}
	delete(c.entries, key)
	go c.deliver(entry.event, key)
}

func (c *Coalescer) flush() {
	for key, entry := range c.entries {
		entry.timer.Stop()
		c.deliver(entry.event, key)
	}
	c.entries = make(map[string]*pendingEntry)
}

// deliver hands the merged event to the sink with at most one retry,
// then drops it. Failures are logged, never propagated.
func (c *Coalescer) deliver(event *events.PermissionChangedEvent, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics.CoalescerDispatches.Inc()

	err := c.sink.PublishPermissionChanged(ctx, event)
	if err != nil {
		log.Printf("Notification delivery failed for %s, retrying once: %v", key, err)
		err = c.sink.PublishPermissionChanged(ctx, event)
	}
	if err != nil {
		metrics.NotificationFailures.Inc()
		log.Printf("Dropping notification for %s after retry: %v", key, err)
	}

	if c.pending != nil {
		if err := c.pending.Delete(ctx, pendingStoreKey(key)); err != nil {
			log.Printf("Failed to clear pending event %s: %v", key, err)
		}
	}
}

func pendingStoreKey(dedupKey string) string {
	return "perm:pending:" + dedupKey
}

// persistPending mirrors the merged event with the dedup-window TTL.
// Best effort; the in-memory entry is authoritative.
func (c *Coalescer) persistPending(key string, event *events.PermissionChangedEvent) {
	if c.pending == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.pending.SaveStructCached(ctx, pendingStoreKey(key), event, c.dedupWindow); err != nil {
		log.Printf("Failed to persist pending event %s: %v", key, err)
	}
}
