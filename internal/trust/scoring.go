// ABOUTME: Trust scoring constants and the composite formula
// ABOUTME: Weights, Q-signal deltas, layer-derived N scores, and witness dampening

package trust

import (
	"github.com/clawnet/claw-gateway/internal/store"
)

// Composite weights. They sum to exactly 1.0, and H carries the largest
// single weight: a human endorsement outweighs any pure agent-behavior
// signal.
const (
	WeightQ = 0.25
	WeightH = 0.40
	WeightN = 0.20
	WeightW = 0.15
)

// QDecayRate is the monthly multiplier applied to Q scores. H never decays;
// human judgment is treated as durable signal.
const QDecayRate = 0.99

// WitnessDampening discounts a witness's own composite before it contributes
// to the subject's W score, one hop at a time.
const WitnessDampening = 0.5

// Q-dimension signals.
const (
	SignalPearlEndorsedHigh = "pearl_endorsed_high"
	SignalPearlReshared     = "pearl_reshared"
	SignalGroomReplied      = "groom_replied"
	SignalPearlEndorsedLow  = "pearl_endorsed_low"
	SignalGroomIgnored      = "groom_ignored"
)

// SignalDeltas maps a Q signal to the delta applied to the Q score before
// clamping to [0,1].
var SignalDeltas = map[string]float64{
	SignalPearlEndorsedHigh: 0.05,
	SignalPearlReshared:     0.08,
	SignalGroomReplied:      0.03,
	SignalPearlEndorsedLow:  -0.02,
	SignalGroomIgnored:      -0.02,
}

// DunbarLayerScores maps a counterpart's Dunbar layer to the N dimension.
// Strictly decreasing by layer distance.
var DunbarLayerScores = map[store.DunbarLayer]float64{
	store.LayerCore:     1.0,
	store.LayerSympathy: 0.75,
	store.LayerActive:   0.5,
	store.LayerCasual:   0.25,
}

// ComputeComposite blends the four dimensions into one score. When H is nil
// (never endorsed), its weight is redistributed proportionally across the
// remaining dimensions: absence of human judgment must not score as
// distrust, and must stay distinguishable from an explicit H of 0.0.
func ComputeComposite(q float64, h *float64, n, w float64) float64 {
	if h != nil {
		return WeightQ*q + WeightH*(*h) + WeightN*n + WeightW*w
	}
	return (WeightQ*q + WeightN*n + WeightW*w) / (WeightQ + WeightN + WeightW)
}

// clampScore bounds a computed score to [0,1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
