// ABOUTME: Tests for the in-memory event bus
// ABOUTME: Covers fan-out, non-blocking emit, and subscription cleanup

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitReachesAllSubscribers(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	b.Emit(Event{Name: EventHeartbeat, ClawID: "claw_abc"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventHeartbeat, ev.Name)
			assert.Equal(t, "claw_abc", ev.ClawID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_EmitNeverBlocksOnFullSubscriber(t *testing.T) {
	b := New(nil)
	_, _ = b.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		// Overrun the subscriber buffer without anyone draining it.
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Emit(Event{Name: EventInboxDelivered})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(nil)
	ch, subID := b.Subscribe(context.Background())

	require.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(subID)
	assert.Equal(t, 0, b.SubscriberCount())

	// Channel is closed after unsubscribe.
	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe is a no-op.
	assert.NotPanics(t, func() { b.Unsubscribe(subID) })
}

func TestBus_ContextCancelCleansUp(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = b.Subscribe(ctx)

	cancel()
	assert.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}
