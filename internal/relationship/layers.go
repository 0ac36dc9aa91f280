// ABOUTME: Dunbar layer thresholds, classification, and the piecewise decay function
// ABOUTME: Pure numeric logic with no storage dependencies

package relationship

import (
	"github.com/clawnet/claw-gateway/internal/store"
)

// Strength bounds. Decay never drives strength below MinStrength: a true zero
// would multiply out to zero forever and lock the pair at the bottom.
const (
	MinStrength     = 0.01
	MaxStrength     = 1.0
	DefaultStrength = 0.5
)

// Layer thresholds by ascending strength. These coincide with the decay
// function's breakpoints so classification and decay share one geometry.
const (
	ThresholdActive   = 0.3 // below: casual
	ThresholdSympathy = 0.6
	ThresholdCore     = 0.8
)

// ClassifyLayer maps a strength to its Dunbar layer.
func ClassifyLayer(strength float64) store.DunbarLayer {
	switch {
	case strength >= ThresholdCore:
		return store.LayerCore
	case strength >= ThresholdSympathy:
		return store.LayerSympathy
	case strength >= ThresholdActive:
		return store.LayerActive
	default:
		return store.LayerCasual
	}
}

// LayerLowerBound returns the strength at which a layer begins. Falling below
// it reclassifies the pair into the next layer down.
func LayerLowerBound(layer store.DunbarLayer) float64 {
	switch layer {
	case store.LayerCore:
		return ThresholdCore
	case store.LayerSympathy:
		return ThresholdSympathy
	case store.LayerActive:
		return ThresholdActive
	default:
		return 0
	}
}

// ComputeDecayRate returns the per-period strength multiplier for a given
// strength. Piecewise-linear, continuous at each breakpoint, and
// non-decreasing: stronger relationships decay slower.
//
//	s in [0.0, 0.3): 0.95  + s * 0.10
//	s in [0.3, 0.6): 0.98  + (s - 0.3) * 0.05
//	s in [0.6, 0.8): 0.995 + (s - 0.6) * 0.02
//	s in [0.8, 1.0]: 0.999
func ComputeDecayRate(strength float64) float64 {
	switch {
	case strength < ThresholdActive:
		return 0.95 + strength*0.10
	case strength < ThresholdSympathy:
		return 0.98 + (strength-ThresholdActive)*0.05
	case strength < ThresholdCore:
		return 0.995 + (strength-ThresholdSympathy)*0.02
	default:
		return 0.999
	}
}

// clampStrength bounds a strength to [MinStrength, MaxStrength].
func clampStrength(s float64) float64 {
	if s < MinStrength {
		return MinStrength
	}
	if s > MaxStrength {
		return MaxStrength
	}
	return s
}
