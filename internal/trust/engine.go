// ABOUTME: Trust scoring engine: signal-driven Q updates, H/N/W dimensions, decay, composites
// ABOUTME: Q updates and composite recomputation are an explicit two-phase discipline

package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawnet/claw-gateway/internal/store"
)

// ErrUnknownSignal is returned for a Q signal not in the signal table.
var ErrUnknownSignal = errors.New("unknown trust signal")

// ErrScoreOutOfRange is returned when a directly asserted score falls outside
// [0,1]. Clamping applies only to computed deltas, never to asserted input.
var ErrScoreOutOfRange = errors.New("score out of range")

// Engine mutates per-pair, per-domain trust records.
type Engine struct {
	trust  store.TrustStore
	logger *slog.Logger
}

// NewEngine creates a trust engine. Pass nil logger for the default.
func NewEngine(trust store.TrustStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		trust:  trust,
		logger: logger.With("component", "trust"),
	}
}

// Establish creates the _overall trust record for a new friendship with the
// default dimensions: Q=0, H=nil, N=0, W=0.
func (e *Engine) Establish(ctx context.Context, from, to string) error {
	return e.Upsert(ctx, &store.TrustScore{
		FromClawID: from,
		ToClawID:   to,
		Domain:     store.DomainOverall,
	})
}

// Upsert creates or replaces a domain record. Unset dimensions keep their
// zero defaults; the composite is computed from whatever is present.
func (e *Engine) Upsert(ctx context.Context, ts *store.TrustScore) error {
	ts.Composite = ComputeComposite(ts.Q, ts.H, ts.N, ts.W)
	if ts.UpdatedAt.IsZero() {
		ts.UpdatedAt = time.Now().UTC()
	}
	return e.trust.UpsertTrustScore(ctx, ts)
}

// RemovePair deletes every domain record for an ordered pair, both on
// friendship teardown and when a claw is purged.
func (e *Engine) RemovePair(ctx context.Context, from, to string) error {
	return e.trust.DeleteTrustScores(ctx, from, to)
}

// Get returns the record for a pair+domain.
func (e *Engine) Get(ctx context.Context, from, to, domain string) (*store.TrustScore, error) {
	return e.trust.GetTrustScore(ctx, from, to, domain)
}

// ApplySignal applies a named Q signal to a pair+domain, creating the domain
// record lazily if signal traffic reaches a domain that has none yet. The
// composite is left stale: callers batch signals and invoke UpdateComposite
// once per tick.
func (e *Engine) ApplySignal(ctx context.Context, from, to, domain, signal string) (int, error) {
	delta, ok := SignalDeltas[signal]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSignal, signal)
	}

	_, err := e.trust.GetTrustScore(ctx, from, to, domain)
	if errors.Is(err, store.ErrNotFound) {
		if err := e.Upsert(ctx, &store.TrustScore{FromClawID: from, ToClawID: to, Domain: domain}); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	return e.UpdateQScore(ctx, from, to, domain, delta)
}

// UpdateQScore applies a delta to the Q dimension, clamped to [0,1]. It does
// NOT recompute the composite; that is the caller's second phase, so a batch
// of signals costs one recomputation. A missing record is a no-op returning
// zero affected rows.
func (e *Engine) UpdateQScore(ctx context.Context, from, to, domain string, delta float64) (int, error) {
	ts, err := e.trust.GetTrustScore(ctx, from, to, domain)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ts.Q = clampScore(ts.Q + delta)
	return e.trust.SaveTrustScore(ctx, ts)
}

// UpdateHScore sets or clears the human endorsement. A nil score clears the
// endorsement entirely, which is semantically distinct from asserting 0.0.
// Non-nil scores must already be in [0,1]. The composite recomputes inline:
// H changes are singular, not batched.
func (e *Engine) UpdateHScore(ctx context.Context, from, to, domain string, score *float64) (int, error) {
	if score != nil && (*score < 0 || *score > 1) {
		return 0, fmt.Errorf("%w: h=%v", ErrScoreOutOfRange, *score)
	}

	ts, err := e.trust.GetTrustScore(ctx, from, to, domain)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ts.H = score
	ts.Composite = ComputeComposite(ts.Q, ts.H, ts.N, ts.W)
	return e.trust.SaveTrustScore(ctx, ts)
}

// UpdateNFromLayer derives the N dimension of the _overall record from the
// counterpart relationship's Dunbar layer and recomputes the composite.
func (e *Engine) UpdateNFromLayer(ctx context.Context, from, to string, layer store.DunbarLayer) (int, error) {
	score, ok := DunbarLayerScores[layer]
	if !ok {
		return 0, fmt.Errorf("%w: layer %q", ErrScoreOutOfRange, layer)
	}

	ts, err := e.trust.GetTrustScore(ctx, from, to, store.DomainOverall)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ts.N = score
	ts.Composite = ComputeComposite(ts.Q, ts.H, ts.N, ts.W)
	return e.trust.SaveTrustScore(ctx, ts)
}

// ApplyWitnessReport folds a pre-aggregated witness composite into the W
// dimension, discounting it by WitnessDampening per hop. Graph traversal and
// aggregation happen upstream; the engine only applies the constant.
func (e *Engine) ApplyWitnessReport(ctx context.Context, from, to, domain string, witnessComposite float64) (int, error) {
	if witnessComposite < 0 || witnessComposite > 1 {
		return 0, fmt.Errorf("%w: witness=%v", ErrScoreOutOfRange, witnessComposite)
	}

	ts, err := e.trust.GetTrustScore(ctx, from, to, domain)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ts.W = clampScore(witnessComposite * WitnessDampening)
	ts.Composite = ComputeComposite(ts.Q, ts.H, ts.N, ts.W)
	return e.trust.SaveTrustScore(ctx, ts)
}

// UpdateComposite recomputes a record's composite from its current
// dimensions. The composite is derived, never independently asserted.
func (e *Engine) UpdateComposite(ctx context.Context, from, to, domain string) (int, error) {
	ts, err := e.trust.GetTrustScore(ctx, from, to, domain)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ts.Composite = ComputeComposite(ts.Q, ts.H, ts.N, ts.W)
	return e.trust.SaveTrustScore(ctx, ts)
}

// DecayAllQ applies the monthly Q decay, optionally scoped to one owner,
// then recomputes the affected composites as the second phase. Returns the
// number of rows the decay touched.
func (e *Engine) DecayAllQ(ctx context.Context, rate float64, fromClawID string) (int, error) {
	n, err := e.trust.DecayQScores(ctx, rate, fromClawID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	recs, err := e.trust.ListTrustScores(ctx, fromClawID)
	if err != nil {
		return n, fmt.Errorf("listing scores after decay: %w", err)
	}
	for _, ts := range recs {
		ts.Composite = ComputeComposite(ts.Q, ts.H, ts.N, ts.W)
		if _, err := e.trust.SaveTrustScore(ctx, ts); err != nil {
			return n, err
		}
	}

	e.logger.Debug("trust decay complete", "affected", n, "from", fromClawID)
	return n, nil
}

// GetTopDomains ranks a pair's domain records by composite descending.
// Message routing uses this to pick the most-trusted domain channel.
func (e *Engine) GetTopDomains(ctx context.Context, from, to string, limit int) ([]*store.TrustScore, error) {
	return e.trust.ListTrustDomains(ctx, from, to, limit)
}
