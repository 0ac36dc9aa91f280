// ABOUTME: Relationship strength engine: establish, touch, boost, decay, and at-risk detection
// ABOUTME: Emits relationship.layer_changed on the bus whenever a layer reclassifies

package relationship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/store"
)

// ErrInvalidLayer is returned when a layer value outside the known tiers is
// asserted directly. Clamping applies to computed values only, never to
// invalid enum input.
var ErrInvalidLayer = errors.New("invalid dunbar layer")

// LayerChange is the payload of a relationship.layer_changed event.
type LayerChange struct {
	ClawID   string            `json:"claw_id"`
	FriendID string            `json:"friend_id"`
	From     store.DunbarLayer `json:"from"`
	To       store.DunbarLayer `json:"to"`
	Strength float64           `json:"strength"`
}

// Engine mutates per-pair relationship strength records.
type Engine struct {
	relationships store.RelationshipStore
	bus           *bus.Bus
	logger        *slog.Logger
}

// NewEngine creates a relationship engine. Pass nil logger for the default.
func NewEngine(relationships store.RelationshipStore, eventBus *bus.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		relationships: relationships,
		bus:           eventBus,
		logger:        logger.With("component", "relationship"),
	}
}

// Establish creates the default relationship record for a newly accepted
// friendship: strength 0.5, layer classified from the default thresholds,
// no manual override.
func (e *Engine) Establish(ctx context.Context, clawID, friendID string) (*store.Relationship, error) {
	rec := &store.Relationship{
		ClawID:    clawID,
		FriendID:  friendID,
		Strength:  DefaultStrength,
		Layer:     ClassifyLayer(DefaultStrength),
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.relationships.CreateRelationship(ctx, rec); err != nil {
		return nil, fmt.Errorf("establishing relationship %s->%s: %w", clawID, friendID, err)
	}
	return rec, nil
}

// Remove deletes a pair's relationship record.
func (e *Engine) Remove(ctx context.Context, clawID, friendID string) error {
	return e.relationships.DeleteRelationship(ctx, clawID, friendID)
}

// Get returns a pair's relationship record.
func (e *Engine) Get(ctx context.Context, clawID, friendID string) (*store.Relationship, error) {
	return e.relationships.GetRelationship(ctx, clawID, friendID)
}

// List returns all relationships owned by a claw, strongest first.
func (e *Engine) List(ctx context.Context, clawID string) ([]*store.Relationship, error) {
	return e.relationships.ListRelationships(ctx, clawID)
}

// TouchInteraction records that the pair interacted now. It does not change
// strength; strength increases are driven by interaction classification
// upstream. The touch is an idempotent side-effect-only write, so racing the
// decay tick is harmless.
func (e *Engine) TouchInteraction(ctx context.Context, clawID, friendID string) error {
	return e.relationships.TouchRelationship(ctx, clawID, friendID, time.Now().UTC())
}

// BoostStrength raises a pair's strength by delta, clamped to the strength
// bounds, and reclassifies the layer unless a manual override is set.
func (e *Engine) BoostStrength(ctx context.Context, clawID, friendID string, delta float64) (*store.Relationship, error) {
	rec, err := e.relationships.GetRelationship(ctx, clawID, friendID)
	if err != nil {
		return nil, err
	}

	rec.Strength = clampStrength(rec.Strength + delta)
	newLayer := rec.Layer
	if !rec.ManualOverride {
		newLayer = ClassifyLayer(rec.Strength)
	}

	if _, err := e.relationships.SetStrength(ctx, clawID, friendID, rec.Strength, newLayer); err != nil {
		return nil, err
	}
	if newLayer != rec.Layer {
		e.emitLayerChange(rec, newLayer)
	}
	rec.Layer = newLayer
	return rec, nil
}

// DecayAll applies one decay period to every stored relationship and returns
// the count of rows mutated. Each pair's rate comes from ComputeDecayRate at
// its current strength; the result is clamped to [MinStrength, MaxStrength].
// Layers reclassify automatically unless the pair has a manual override.
// Writes are single-row last-write-wins, safe against concurrent touches.
func (e *Engine) DecayAll(ctx context.Context) (int, error) {
	recs, err := e.relationships.ListAllRelationships(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing relationships for decay: %w", err)
	}

	mutated := 0
	for _, rec := range recs {
		newStrength := clampStrength(rec.Strength * ComputeDecayRate(rec.Strength))

		newLayer := rec.Layer
		if !rec.ManualOverride {
			newLayer = ClassifyLayer(newStrength)
		}

		if newStrength == rec.Strength && newLayer == rec.Layer {
			continue
		}

		n, err := e.relationships.SetStrength(ctx, rec.ClawID, rec.FriendID, newStrength, newLayer)
		if err != nil {
			return mutated, err
		}
		if n == 0 {
			// Pair removed while the batch ran; nothing to count.
			continue
		}
		mutated++

		if newLayer != rec.Layer {
			rec.Strength = newStrength
			e.emitLayerChange(rec, newLayer)
		}
	}

	e.logger.Debug("decay pass complete", "total", len(recs), "mutated", mutated)
	return mutated, nil
}

// GetAtRisk returns relationships about to downgrade from neglect: strength
// within margin of the bottom of their current layer, and last interaction
// older than inactiveDays (a pair that never interacted counts as inactive).
// Casual pairs have no layer below them and manually pinned pairs never
// reclassify, so both are excluded. Pure read, no mutation.
func (e *Engine) GetAtRisk(ctx context.Context, clawID string, margin float64, inactiveDays int) ([]*store.Relationship, error) {
	recs, err := e.relationships.ListRelationships(ctx, clawID)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -inactiveDays)
	var atRisk []*store.Relationship
	for _, rec := range recs {
		if rec.Layer == store.LayerCasual || rec.ManualOverride {
			continue
		}
		if rec.Strength-LayerLowerBound(rec.Layer) > margin {
			continue
		}
		if rec.LastInteractionAt != nil && rec.LastInteractionAt.After(cutoff) {
			continue
		}
		atRisk = append(atRisk, rec)
	}
	return atRisk, nil
}

// SetManualLayer pins a pair's layer and suppresses automatic
// reclassification until the override is cleared. Returns store.ErrNotFound
// if the pair has no relationship record, ErrInvalidLayer for unknown layers.
func (e *Engine) SetManualLayer(ctx context.Context, clawID, friendID string, layer store.DunbarLayer) error {
	if !layer.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLayer, layer)
	}
	rec, err := e.relationships.GetRelationship(ctx, clawID, friendID)
	if err != nil {
		return err
	}
	if _, err := e.relationships.SetManualLayer(ctx, clawID, friendID, layer, true); err != nil {
		return err
	}
	if layer != rec.Layer {
		e.emitLayerChange(rec, layer)
	}
	return nil
}

// ClearManualOverride releases a pin and reclassifies from current strength.
func (e *Engine) ClearManualOverride(ctx context.Context, clawID, friendID string) error {
	rec, err := e.relationships.GetRelationship(ctx, clawID, friendID)
	if err != nil {
		return err
	}
	newLayer := ClassifyLayer(rec.Strength)
	if _, err := e.relationships.SetManualLayer(ctx, clawID, friendID, newLayer, false); err != nil {
		return err
	}
	if newLayer != rec.Layer {
		e.emitLayerChange(rec, newLayer)
	}
	return nil
}

func (e *Engine) emitLayerChange(rec *store.Relationship, to store.DunbarLayer) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(bus.Event{
		Name:   bus.EventLayerChanged,
		ClawID: rec.ClawID,
		Payload: LayerChange{
			ClawID:   rec.ClawID,
			FriendID: rec.FriendID,
			From:     rec.Layer,
			To:       to,
			Strength: rec.Strength,
		},
	})
}
