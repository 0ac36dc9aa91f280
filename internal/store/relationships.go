// ABOUTME: SQLite persistence for per-pair relationship strength records
// ABOUTME: Single-row updates keep touch and decay commutative without app-level locking

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const relationshipColumns = `claw_id, friend_id, strength, dunbar_layer, manual_override, last_interaction_at, updated_at`

func scanRelationship(scan func(dest ...any) error) (*Relationship, error) {
	var r Relationship
	var override int
	var lastInteraction sql.NullString
	var updatedAt string

	if err := scan(
		&r.ClawID, &r.FriendID, &r.Strength, (*string)(&r.Layer),
		&override, &lastInteraction, &updatedAt,
	); err != nil {
		return nil, err
	}
	r.ManualOverride = override != 0

	var err error
	if r.LastInteractionAt, err = scanTime(lastInteraction); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &r, nil
}

// CreateRelationship inserts a new relationship record. Returns ErrDuplicate
// if the pair already has one.
func (s *SQLiteStore) CreateRelationship(ctx context.Context, r *Relationship) error {
	query := `
		INSERT INTO relationships (claw_id, friend_id, strength, dunbar_layer, manual_override, last_interaction_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var lastInteraction any
	if r.LastInteractionAt != nil {
		lastInteraction = r.LastInteractionAt.UTC().Format(time.RFC3339)
	}
	override := 0
	if r.ManualOverride {
		override = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ClawID, r.FriendID, r.Strength, string(r.Layer),
		override, lastInteraction, r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting relationship: %w", err)
	}
	return nil
}

// GetRelationship retrieves a pair's relationship record.
func (s *SQLiteStore) GetRelationship(ctx context.Context, clawID, friendID string) (*Relationship, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM relationships WHERE claw_id = ? AND friend_id = ?`,
		clawID, friendID,
	)
	r, err := scanRelationship(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying relationship: %w", err)
	}
	return r, nil
}

// ListRelationships returns all relationships owned by a claw.
func (s *SQLiteStore) ListRelationships(ctx context.Context, clawID string) ([]*Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationshipColumns+` FROM relationships WHERE claw_id = ? ORDER BY strength DESC`,
		clawID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		r, err := scanRelationship(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListAllRelationships returns every relationship row across all owners.
// Used by the decay scheduler.
func (s *SQLiteStore) ListAllRelationships(ctx context.Context) ([]*Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationshipColumns+` FROM relationships`)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		r, err := scanRelationship(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetStrength writes a pair's strength and layer in one row update. Returns
// the affected-row count; a missing pair is 0, not an error, because decay
// races friendship removal by design.
func (s *SQLiteStore) SetStrength(ctx context.Context, clawID, friendID string, strength float64, layer DunbarLayer) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE relationships SET strength = ?, dunbar_layer = ?, updated_at = ? WHERE claw_id = ? AND friend_id = ?`,
		strength, string(layer), time.Now().UTC().Format(time.RFC3339), clawID, friendID,
	)
	if err != nil {
		return 0, fmt.Errorf("updating strength: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SetManualLayer writes a pair's layer and override flag.
func (s *SQLiteStore) SetManualLayer(ctx context.Context, clawID, friendID string, layer DunbarLayer, override bool) (int, error) {
	ov := 0
	if override {
		ov = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE relationships SET dunbar_layer = ?, manual_override = ?, updated_at = ? WHERE claw_id = ? AND friend_id = ?`,
		string(layer), ov, time.Now().UTC().Format(time.RFC3339), clawID, friendID,
	)
	if err != nil {
		return 0, fmt.Errorf("updating layer: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TouchRelationship records an interaction timestamp. Idempotent: repeated
// touches with the same timestamp are indistinguishable.
func (s *SQLiteStore) TouchRelationship(ctx context.Context, clawID, friendID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE relationships SET last_interaction_at = ?, updated_at = ? WHERE claw_id = ? AND friend_id = ?`,
		at.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), clawID, friendID,
	)
	if err != nil {
		return fmt.Errorf("touching relationship: %w", err)
	}
	return nil
}

// DeleteRelationship removes a pair's relationship record.
func (s *SQLiteStore) DeleteRelationship(ctx context.Context, clawID, friendID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM relationships WHERE claw_id = ? AND friend_id = ?`, clawID, friendID)
	if err != nil {
		return fmt.Errorf("deleting relationship: %w", err)
	}
	return nil
}
