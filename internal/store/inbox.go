// ABOUTME: SQLite persistence for messages, inbox entries, and per-recipient sequence counters
// ABOUTME: Seq allocation is a single atomic upsert so ordering holds under concurrency

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SaveMessage persists a message body.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, content, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.SenderID, m.Content, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender_id, content, created_at FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.SenderID, &m.Content, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &m, nil
}

// HasInboxEntry reports whether a recipient holds a delivery of the message.
func (s *SQLiteStore) HasInboxEntry(ctx context.Context, recipientID, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM inbox_entries WHERE recipient_id = ? AND message_id = ? LIMIT 1`,
		recipientID, messageID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying inbox entry: %w", err)
	}
	return true, nil
}

// NextSeq allocates the next sequence number for a recipient. The upsert and
// read-back happen in one statement so concurrent sends to the same recipient
// always receive distinct, increasing values.
func (s *SQLiteStore) NextSeq(ctx context.Context, recipientID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO seq_counters (recipient_id, next_seq) VALUES (?, 1)
		ON CONFLICT (recipient_id) DO UPDATE SET next_seq = next_seq + 1
		RETURNING next_seq`,
		recipientID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("allocating seq: %w", err)
	}
	return seq, nil
}

// CreateInboxEntry inserts a delivery row. A duplicate (recipient, seq) pair
// indicates a counter fault and surfaces as ErrDuplicate.
func (s *SQLiteStore) CreateInboxEntry(ctx context.Context, e *InboxEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inbox_entries (id, recipient_id, message_id, seq, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.RecipientID, e.MessageID, e.Seq, string(e.Status),
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting inbox entry: %w", err)
	}
	return nil
}

// ListInbox returns a recipient's entries with seq > AfterSeq, ordered by seq
// ascending. Status filtering is skipped for InboxStatusAll or empty.
func (s *SQLiteStore) ListInbox(ctx context.Context, recipientID string, q InboxQuery) ([]*InboxEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, recipient_id, message_id, seq, status, created_at
		FROM inbox_entries
		WHERE recipient_id = ? AND seq > ?
	`
	args := []any{recipientID, q.AfterSeq}
	if q.Status != "" && q.Status != InboxStatusAll {
		query += ` AND status = ?`
		args = append(args, q.Status)
	}
	query += ` ORDER BY seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying inbox: %w", err)
	}
	defer rows.Close()

	var out []*InboxEntry
	for rows.Next() {
		var e InboxEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RecipientID, &e.MessageID, &e.Seq, (*string)(&e.Status), &createdAt); err != nil {
			return nil, fmt.Errorf("scanning inbox entry: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SetEntryStatus transitions entries to the given status, skipping entries
// already there. Returns the count actually transitioned, which is what makes
// acknowledgment idempotent.
func (s *SQLiteStore) SetEntryStatus(ctx context.Context, recipientID string, ids []string, status InboxStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `
		UPDATE inbox_entries SET status = ?
		WHERE recipient_id = ? AND status != ? AND id IN (` + placeholders + `)`
	if status == InboxRead {
		// read never demotes an acked entry
		query += ` AND status != '` + string(InboxAcked) + `'`
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, string(status), recipientID, string(status))
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("updating entry status: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UnreadCount counts unread entries with the same predicate ListInbox uses,
// so the two can never drift apart.
func (s *SQLiteStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbox_entries WHERE recipient_id = ? AND status = ?`,
		recipientID, string(InboxUnread),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread: %w", err)
	}
	return count, nil
}

// PurgeAckedBefore deletes acked entries older than the cutoff. Retention
// only removes entries whose delivery is confirmed; unread and read rows are
// never purged.
func (s *SQLiteStore) PurgeAckedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM inbox_entries WHERE status = ? AND created_at < ?`,
		string(InboxAcked), cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("purging inbox entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
