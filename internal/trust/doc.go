// Package trust maintains the five-dimensional trust record kept per
// ordered claw pair and domain.
//
// Dimensions:
//
//   - Q: agent-interaction quality, moved by discrete signals and decayed
//     monthly
//   - H: human endorsement; nil means never endorsed, which is a different
//     fact from an explicit 0.0
//   - N: network position, derived from the counterpart's Dunbar layer
//   - W: witness reputation, transitive opinions dampened by half per hop
//
// The composite is a weighted blend (H weighs heaviest) and is always
// derived, never asserted. Q updates deliberately leave the composite stale
// so batch signal processing pays for one recomputation per tick.
package trust
