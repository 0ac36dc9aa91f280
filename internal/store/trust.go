// ABOUTME: SQLite persistence for per-pair, per-domain trust score records
// ABOUTME: Preserves the NULL h_score semantic (never endorsed) distinct from 0.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const trustColumns = `from_claw_id, to_claw_id, domain, q_score, h_score, n_score, w_score, composite, updated_at`

func scanTrustScore(scan func(dest ...any) error) (*TrustScore, error) {
	var ts TrustScore
	var h sql.NullFloat64
	var updatedAt string

	if err := scan(
		&ts.FromClawID, &ts.ToClawID, &ts.Domain,
		&ts.Q, &h, &ts.N, &ts.W, &ts.Composite, &updatedAt,
	); err != nil {
		return nil, err
	}
	if h.Valid {
		v := h.Float64
		ts.H = &v
	}
	var err error
	if ts.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &ts, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// UpsertTrustScore inserts or replaces a trust record for a pair+domain.
func (s *SQLiteStore) UpsertTrustScore(ctx context.Context, ts *TrustScore) error {
	query := `
		INSERT INTO trust_scores (from_claw_id, to_claw_id, domain, q_score, h_score, n_score, w_score, composite, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (from_claw_id, to_claw_id, domain) DO UPDATE SET
			q_score = excluded.q_score,
			h_score = excluded.h_score,
			n_score = excluded.n_score,
			w_score = excluded.w_score,
			composite = excluded.composite,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		ts.FromClawID, ts.ToClawID, ts.Domain,
		ts.Q, nullableFloat(ts.H), ts.N, ts.W, ts.Composite,
		ts.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting trust score: %w", err)
	}
	return nil
}

// GetTrustScore retrieves a pair+domain trust record.
func (s *SQLiteStore) GetTrustScore(ctx context.Context, from, to, domain string) (*TrustScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+trustColumns+` FROM trust_scores WHERE from_claw_id = ? AND to_claw_id = ? AND domain = ?`,
		from, to, domain,
	)
	ts, err := scanTrustScore(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying trust score: %w", err)
	}
	return ts, nil
}

// SaveTrustScore writes all dimensions of an existing record in one row
// update. Returns the affected-row count; missing rows are 0, not an error,
// since trust records are sparse and lazily created.
func (s *SQLiteStore) SaveTrustScore(ctx context.Context, ts *TrustScore) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trust_scores
		SET q_score = ?, h_score = ?, n_score = ?, w_score = ?, composite = ?, updated_at = ?
		WHERE from_claw_id = ? AND to_claw_id = ? AND domain = ?`,
		ts.Q, nullableFloat(ts.H), ts.N, ts.W, ts.Composite,
		time.Now().UTC().Format(time.RFC3339),
		ts.FromClawID, ts.ToClawID, ts.Domain,
	)
	if err != nil {
		return 0, fmt.Errorf("updating trust score: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListTrustScores returns every trust record, optionally scoped to one
// owner. Used for batch composite recomputation after a decay pass.
func (s *SQLiteStore) ListTrustScores(ctx context.Context, fromClawID string) ([]*TrustScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trustColumns+` FROM trust_scores WHERE (? = '' OR from_claw_id = ?)`,
		fromClawID, fromClawID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trust scores: %w", err)
	}
	defer rows.Close()

	var out []*TrustScore
	for rows.Next() {
		ts, err := scanTrustScore(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning trust score: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ListTrustDomains returns a pair's per-domain records ranked by composite
// descending.
func (s *SQLiteStore) ListTrustDomains(ctx context.Context, from, to string, limit int) ([]*TrustScore, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trustColumns+` FROM trust_scores
		 WHERE from_claw_id = ? AND to_claw_id = ?
		 ORDER BY composite DESC LIMIT ?`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trust domains: %w", err)
	}
	defer rows.Close()

	var out []*TrustScore
	for rows.Next() {
		ts, err := scanTrustScore(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning trust score: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// DecayQScores applies a flat multiplier to every q_score, optionally scoped
// to one owner. The composite is deliberately left stale; the engine triggers
// recomputation as a second phase.
func (s *SQLiteStore) DecayQScores(ctx context.Context, rate float64, fromClawID string) (int, error) {
	query := `
		UPDATE trust_scores
		SET q_score = MAX(0.0, MIN(1.0, q_score * ?)), updated_at = ?
		WHERE (? = '' OR from_claw_id = ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		rate, time.Now().UTC().Format(time.RFC3339), fromClawID, fromClawID)
	if err != nil {
		return 0, fmt.Errorf("decaying q scores: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteTrustScores removes all domains for an ordered pair.
func (s *SQLiteStore) DeleteTrustScores(ctx context.Context, from, to string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM trust_scores WHERE from_claw_id = ? AND to_claw_id = ?`, from, to)
	if err != nil {
		return fmt.Errorf("deleting trust scores: %w", err)
	}
	return nil
}
