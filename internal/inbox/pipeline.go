// ABOUTME: Inbox delivery pipeline: seq-numbered fan-out, catch-up reads, idempotent acks
// ABOUTME: A per-recipient read model over sent messages, not a queue broker

package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/store"
)

// Delivery is the payload of an inbox.delivered event.
type Delivery struct {
	EntryID     string `json:"entry_id"`
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	Seq         int64  `json:"seq"`
}

// Acknowledgment is the payload of an inbox.acked event.
type Acknowledgment struct {
	RecipientID string   `json:"recipient_id"`
	EntryIDs    []string `json:"entry_ids"`
	Count       int      `json:"count"`
}

// Pipeline routes sent messages into per-recipient inboxes and serves the
// catch-up read model.
type Pipeline struct {
	inbox  store.InboxStore
	bus    *bus.Bus
	logger *slog.Logger
}

// NewPipeline creates an inbox pipeline. Pass nil logger for the default.
func NewPipeline(inboxStore store.InboxStore, eventBus *bus.Bus, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		inbox:  inboxStore,
		bus:    eventBus,
		logger: logger.With("component", "inbox"),
	}
}

// Send persists a message and fans it out to every recipient with a freshly
// allocated per-recipient seq. Delivery is at-least-once: if fan-out fails
// partway the message row survives and the send can be retried; duplicate
// entries are prevented by the (recipient, seq) uniqueness.
// Emits inbox.delivered per recipient; subscribers are never awaited.
func (p *Pipeline) Send(ctx context.Context, senderID, content string, recipientIDs []string) (*store.Message, []*store.InboxEntry, error) {
	msg := &store.Message{
		ID:        uuid.New().String(),
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.inbox.SaveMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("saving message: %w", err)
	}

	entries := make([]*store.InboxEntry, 0, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		entry, err := p.deliver(ctx, msg, recipientID)
		if err != nil {
			return msg, entries, fmt.Errorf("delivering to %s: %w", recipientID, err)
		}
		entries = append(entries, entry)
	}

	p.logger.Debug("message delivered",
		"message_id", msg.ID, "sender", senderID, "recipients", len(entries))
	return msg, entries, nil
}

func (p *Pipeline) deliver(ctx context.Context, msg *store.Message, recipientID string) (*store.InboxEntry, error) {
	seq, err := p.inbox.NextSeq(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	entry := &store.InboxEntry{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		MessageID:   msg.ID,
		Seq:         seq,
		Status:      store.InboxUnread,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.inbox.CreateInboxEntry(ctx, entry); err != nil {
		return nil, err
	}

	if p.bus != nil {
		p.bus.Emit(bus.Event{
			Name:   bus.EventInboxDelivered,
			ClawID: recipientID,
			Payload: Delivery{
				EntryID:     entry.ID,
				RecipientID: recipientID,
				MessageID:   msg.ID,
				SenderID:    msg.SenderID,
				Seq:         seq,
			},
		})
	}
	return entry, nil
}

// GetInbox returns a recipient's entries with seq greater than afterSeq,
// ordered by seq ascending. Clients persist the highest seq they have seen
// and pass it back on reconnect; repeated calls with the same afterSeq
// return identical results until new sends arrive.
func (p *Pipeline) GetInbox(ctx context.Context, clawID string, q store.InboxQuery) ([]*store.InboxEntry, error) {
	return p.inbox.ListInbox(ctx, clawID, q)
}

// Ack transitions entries to acked and returns the count actually
// transitioned. Re-acking already-acked entries contributes zero and is
// never an error.
func (p *Pipeline) Ack(ctx context.Context, clawID string, entryIDs []string) (int, error) {
	n, err := p.inbox.SetEntryStatus(ctx, clawID, entryIDs, store.InboxAcked)
	if err != nil {
		return 0, err
	}

	if n > 0 && p.bus != nil {
		p.bus.Emit(bus.Event{
			Name:   bus.EventInboxAcked,
			ClawID: clawID,
			Payload: Acknowledgment{
				RecipientID: clawID,
				EntryIDs:    entryIDs,
				Count:       n,
			},
		})
	}
	return n, nil
}

// MarkRead transitions entries to read. Like Ack, idempotent by count.
func (p *Pipeline) MarkRead(ctx context.Context, clawID string, entryIDs []string) (int, error) {
	return p.inbox.SetEntryStatus(ctx, clawID, entryIDs, store.InboxRead)
}

// UnreadCount counts a recipient's unread entries with the exact predicate
// GetInbox uses for status=unread; there is no denormalized counter to drift.
func (p *Pipeline) UnreadCount(ctx context.Context, clawID string) (int, error) {
	return p.inbox.UnreadCount(ctx, clawID)
}

// GetMessage resolves a message body for a claw that participated in it:
// the sender, or a recipient holding an inbox entry. Anyone else gets
// store.ErrNotFound, so a leaked message id reveals nothing.
func (p *Pipeline) GetMessage(ctx context.Context, requesterID, messageID string) (*store.Message, error) {
	msg, err := p.inbox.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == requesterID {
		return msg, nil
	}
	ok, err := p.inbox.HasInboxEntry(ctx, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return msg, nil
}

// PurgeAcked removes acked entries older than the retention window. Run by
// the cleanup scheduler task.
func (p *Pipeline) PurgeAcked(ctx context.Context, retention time.Duration) (int, error) {
	return p.inbox.PurgeAckedBefore(ctx, time.Now().UTC().Add(-retention))
}
