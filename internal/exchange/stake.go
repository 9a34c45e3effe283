package exchange

import "math"

// stakeMinCap and stakeMaxCap bound baseStake before the reputation
// multiplier; stakeFinalCap bounds the multiplied result (spec.md §4.4).
const (
	stakeMinCap   = 0
	stakeMaxCap   = 200
	stakeFinalCap = 500
)

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// computeStake implements spec.md §4.4's stake formula: a base percentage of
// budget, clamped, then scaled by a reputation-based multiplier using the
// inclusive-upper-bound convention decided in DESIGN.md's Open Questions.
func computeStake(budget int64, stakePct float64, repScore float64) int64 {
	base := clampInt64(int64(math.Floor(float64(budget)*stakePct)), stakeMinCap, stakeMaxCap)

	var mult float64
	switch {
	case repScore >= 0.75:
		mult = 0.5
	case repScore >= 0.60:
		mult = 1.0
	case repScore >= 0.45:
		mult = 1.5
	default:
		mult = 2.0
	}

	final := int64(math.Floor(float64(base) * mult))
	return clampInt64(final, stakeMinCap, stakeFinalCap)
}

// computeUpfront implements spec.md §4.4's upfront formula.
func computeUpfront(lockedBudget int64, upfrontPct float64) int64 {
	upfront := int64(math.Floor(float64(lockedBudget) * upfrontPct))
	return clampInt64(upfront, 0, lockedBudget)
}

// computeSlash implements spec.md §4.4's settlement-failure slash formula.
func computeSlash(stake int64, slashPct float64) int64 {
	slash := int64(math.Ceil(float64(stake) * slashPct))
	return clampInt64(slash, 0, stake)
}
