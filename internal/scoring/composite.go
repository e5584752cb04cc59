package scoring

import "time"

// Composite score weights. Effort is a fixed placeholder for a future
// content-effort signal.
const (
	WeightRelevance = 0.30
	WeightVirality  = 0.25
	WeightTiming    = 0.40
	WeightEffort    = 0.05

	DefaultEffort = 0.5

	// RelevanceFloor is the minimum relevance below which a candidate is
	// discarded at mining time and never persisted.
	RelevanceFloor = 0.3
)

// Composite combines the sub-scores into the single ranking value
func Composite(relevance, virality, timing float64) float64 {
	return relevance*WeightRelevance +
		virality*WeightVirality +
		timing*WeightTiming +
		DefaultEffort*WeightEffort
}

// ExpiresAt computes when an opportunity of the given urgency becomes stale.
// The urgency window is shortened by the post's current age, floored at zero
// so an already-stale post is immediately sweepable.
func ExpiresAt(now time.Time, ageHours float64, urgency Urgency) time.Time {
	remaining := urgency.ExpiryWindowHours() - ageHours
	if remaining < 0 {
		remaining = 0
	}
	return now.Add(time.Duration(remaining * float64(time.Hour)))
}
