// ABOUTME: SQLite persistence for registered claws and friendship rows
// ABOUTME: Claw ids are derived from public keys upstream; this layer only caches them

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// scanTime parses an RFC3339 string from the database, tolerating NULL.
func scanTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &t, nil
}

// CreateClaw inserts a new claw. Returns ErrDuplicate if the id or public key
// is already registered.
func (s *SQLiteStore) CreateClaw(ctx context.Context, claw *Claw) error {
	query := `
		INSERT INTO claws (claw_id, public_key, encryption_key, encryption_key_fingerprint, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		claw.ID,
		claw.PublicKey,
		claw.EncryptionKey,
		claw.EncryptionKeyFingerprint,
		claw.Label,
		claw.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting claw: %w", err)
	}

	s.logger.Debug("created claw", "claw_id", claw.ID, "label", claw.Label)
	return nil
}

// GetClaw retrieves a claw by id. Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) GetClaw(ctx context.Context, id string) (*Claw, error) {
	query := `
		SELECT claw_id, public_key, encryption_key, encryption_key_fingerprint, label, last_seen_at, created_at
		FROM claws WHERE claw_id = ?
	`

	var claw Claw
	var lastSeen sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&claw.ID,
		&claw.PublicKey,
		&claw.EncryptionKey,
		&claw.EncryptionKeyFingerprint,
		&claw.Label,
		&lastSeen,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying claw: %w", err)
	}

	if claw.LastSeenAt, err = scanTime(lastSeen); err != nil {
		return nil, err
	}
	if claw.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &claw, nil
}

// ListClaws returns registered claws, newest first.
func (s *SQLiteStore) ListClaws(ctx context.Context, limit int) ([]*Claw, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT claw_id, public_key, encryption_key, encryption_key_fingerprint, label, last_seen_at, created_at
		FROM claws ORDER BY created_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying claws: %w", err)
	}
	defer rows.Close()

	var claws []*Claw
	for rows.Next() {
		var claw Claw
		var lastSeen sql.NullString
		var createdAt string
		if err := rows.Scan(
			&claw.ID, &claw.PublicKey, &claw.EncryptionKey,
			&claw.EncryptionKeyFingerprint, &claw.Label, &lastSeen, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning claw: %w", err)
		}
		if claw.LastSeenAt, err = scanTime(lastSeen); err != nil {
			return nil, err
		}
		if claw.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		claws = append(claws, &claw)
	}
	return claws, rows.Err()
}

// SetEncryptionKey records a claw's x25519 key and its fingerprint. A changed
// fingerprint is how clients detect key rotation.
func (s *SQLiteStore) SetEncryptionKey(ctx context.Context, id, key, fingerprint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE claws SET encryption_key = ?, encryption_key_fingerprint = ? WHERE claw_id = ?`,
		key, fingerprint, id,
	)
	if err != nil {
		return fmt.Errorf("updating encryption key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchClawSeen updates a claw's last-seen timestamp.
func (s *SQLiteStore) TouchClawSeen(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE claws SET last_seen_at = ? WHERE claw_id = ?`,
		at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("touching claw: %w", err)
	}
	return nil
}

// UpsertFriendship inserts or updates a friendship row.
func (s *SQLiteStore) UpsertFriendship(ctx context.Context, f *Friendship) error {
	query := `
		INSERT INTO friendships (claw_id, friend_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (claw_id, friend_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		f.ClawID, f.FriendID, string(f.Status),
		f.CreatedAt.UTC().Format(time.RFC3339),
		f.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting friendship: %w", err)
	}
	return nil
}

// GetFriendship retrieves one directed friendship row.
func (s *SQLiteStore) GetFriendship(ctx context.Context, clawID, friendID string) (*Friendship, error) {
	query := `
		SELECT claw_id, friend_id, status, created_at, updated_at
		FROM friendships WHERE claw_id = ? AND friend_id = ?
	`
	var f Friendship
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, clawID, friendID).Scan(
		&f.ClawID, &f.FriendID, (*string)(&f.Status), &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying friendship: %w", err)
	}
	if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if f.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &f, nil
}

// ListFriendships returns all friendship rows owned by a claw.
func (s *SQLiteStore) ListFriendships(ctx context.Context, clawID string) ([]*Friendship, error) {
	query := `
		SELECT claw_id, friend_id, status, created_at, updated_at
		FROM friendships WHERE claw_id = ? ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, clawID)
	if err != nil {
		return nil, fmt.Errorf("querying friendships: %w", err)
	}
	defer rows.Close()

	var out []*Friendship
	for rows.Next() {
		var f Friendship
		var createdAt, updatedAt string
		if err := rows.Scan(&f.ClawID, &f.FriendID, (*string)(&f.Status), &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning friendship: %w", err)
		}
		if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if f.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// DeleteFriendship removes one directed friendship row.
func (s *SQLiteStore) DeleteFriendship(ctx context.Context, clawID, friendID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM friendships WHERE claw_id = ? AND friend_id = ?`, clawID, friendID)
	if err != nil {
		return fmt.Errorf("deleting friendship: %w", err)
	}
	return nil
}
