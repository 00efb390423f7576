// ABOUTME: In-memory fan-out broadcaster for live message events
// ABOUTME: Every subscriber receives a connected event first, then each published message in order

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/support-relay/internal/metrics"
	"github.com/2389/support-relay/internal/store"
)

// DefaultBufferSize is the per-subscriber channel buffer used when none is configured.
const DefaultBufferSize = 64

// EventType identifies a live event on the wire.
type EventType string

const (
	EventConnected EventType = "connected"
	EventMessage   EventType = "message"
)

// Event is what subscribers receive. Data is set only for message events.
type Event struct {
	Type EventType      `json:"type"`
	Data *store.Message `json:"data,omitempty"`
}

var connectedEvent = &Event{Type: EventConnected}

// Subscription is a live registration with the broadcaster. Events is closed
// once the subscription is removed.
type Subscription struct {
	ID     string
	Events <-chan *Event
}

// Broadcaster provides in-memory pub/sub for newly stored messages. It is
// constructed once per process and handed to the ingestion service and to the
// transports that accept subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event // subID -> ch
	bufferSize  int
	closed      bool

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBroadcaster creates a broadcaster. A bufferSize below 1 uses
// DefaultBufferSize. Pass nil logger for default and nil metrics to disable
// instrumentation.
func NewBroadcaster(bufferSize int, m *metrics.Metrics, logger *slog.Logger) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan *Event),
		bufferSize:  bufferSize,
		metrics:     m,
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a new subscriber. The connected event is already queued
// on the returned channel before any message can be published to it. The
// subscription is automatically removed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) *Subscription {
	subID := uuid.New().String()
	ch := make(chan *Event, b.bufferSize)
	ch <- connectedEvent

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return &Subscription{ID: subID, Events: ch}
	}
	b.subscribers[subID] = ch
	count := len(b.subscribers)
	b.mu.Unlock()

	b.metrics.SubscriberAdded()
	b.logger.Debug("subscriber added", "sub_id", subID, "subscribers", count)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return &Subscription{ID: subID, Events: ch}
}

// Publish sends msg to every registered subscriber. Sends are non-blocking:
// a subscriber whose buffer is full misses this event and stays registered.
// The read lock is held across the sends so Unsubscribe cannot close a
// channel mid-send.
func (b *Broadcaster) Publish(msg *store.Message) {
	event := &Event{Type: EventMessage, Data: msg}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.metrics.BroadcastDropped()
			b.logger.Debug("dropped event for slow subscriber",
				"sub_id", subID,
				"message_id", msg.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Unknown or
// already removed ids are ignored.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	ch, exists := b.subscribers[subID]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(b.subscribers, subID)
	close(ch)
	count := len(b.subscribers)
	b.mu.Unlock()

	b.metrics.SubscriberRemoved()
	b.logger.Debug("subscriber removed", "sub_id", subID, "subscribers", count)
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels. Later subscriptions are closed
// immediately after their connected event.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
		b.metrics.SubscriberRemoved()
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
