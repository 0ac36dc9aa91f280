// Package relationship maintains the continuously decaying strength score
// for each friend pair and its Dunbar layer classification.
//
// Strength lives in [0.01, 1.0]. Each decay period multiplies strength by a
// piecewise-linear rate that grows with strength, so close relationships are
// sticky and weak ones fade quickly. Layer boundaries sit at 0.3, 0.6, and
// 0.8; crossing a boundary reclassifies the pair automatically unless the
// owner has pinned the layer manually.
package relationship
