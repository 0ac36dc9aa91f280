// ABOUTME: In-memory fire-and-forget pub/sub bus for gateway events
// ABOUTME: Emitters never block or wait on subscriber completion; slow subscribers drop events

package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the core.
const (
	EventLayerChanged   = "relationship.layer_changed"
	EventHeartbeat      = "heartbeat.received"
	EventInboxDelivered = "inbox.delivered"
	EventInboxAcked     = "inbox.acked"
	EventFriendAccepted = "friend.accepted"
	EventFriendRemoved  = "friend.removed"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Event is a single bus notification. ClawID names the claw the event
// concerns, which delivery fan-outs use to filter per-connection.
type Event struct {
	Name      string
	ClawID    string
	Payload   any
	Timestamp time.Time
}

// Bus is an in-process publish/subscribe event bus. One bus is constructed
// per process and passed explicitly to every component that emits or
// consumes events; there is no package-level singleton.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	logger      *slog.Logger
}

// New creates a bus. Pass nil for the default logger.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber for all events. Returns the receive
// channel and a subscription id. The subscription is cleaned up when ctx is
// cancelled; Unsubscribe may also be called directly.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Emit publishes an event to every subscriber. Non-blocking: subscribers
// whose channels are full miss the event. A zero Timestamp is stamped now.
func (b *Bus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"event", event.Name, "claw_id", event.ClawID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)
	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
