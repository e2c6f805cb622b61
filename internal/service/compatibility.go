package service

import "github.com/code-arena/code-arena-backend/internal/models"

// Compatibility scoring constants. The bonus/penalty weights and the fallback
// window bounds are product-tuned literals.
const (
	ratingDecayDivisor    = 10.0
	timeOfDayBonus        = 20.0
	weekdayBonus          = 15.0
	recentOpponentPenalty = 50.0
	timeOverlapWeight     = 10.0
	weekdayOverlapWeight  = 5.0

	// When the best-scored candidate sits more than this many rating points
	// away, the scored pick is discarded in favor of the plain rating window.
	scoreOverrideRatingGap = 300

	// Fallback rating window relative to the joiner: [rating-100, rating+200].
	ratingWindowBelow = 100
	ratingWindowAbove = 200
)

// CompatibilityScore rates the match quality of two queue entries. Pure
// function: 100 points at equal rating decaying linearly, preference and
// history-overlap bonuses, a rematch penalty, clamped at zero.
func CompatibilityScore(a, b *models.QueueEntry) float64 {
	diff := a.Rating - b.Rating
	if diff < 0 {
		diff = -diff
	}

	score := 100.0 - float64(diff)/ratingDecayDivisor
	if score < 0 {
		score = 0
	}

	if a.PreferredTimeOfDay >= 0 && a.PreferredTimeOfDay == b.PreferredTimeOfDay {
		score += timeOfDayBonus
	}
	if a.PreferredWeekday >= 0 && a.PreferredWeekday == b.PreferredWeekday {
		score += weekdayBonus
	}

	if a.PlayedRecently(b.UserID) || b.PlayedRecently(a.UserID) {
		score -= recentOpponentPenalty
	}

	score += timeOverlapWeight * bucketOverlap(a.TimeOfDayCounts[:], b.TimeOfDayCounts[:])
	score += weekdayOverlapWeight * bucketOverlap(a.WeekdayCounts[:], b.WeekdayCounts[:])

	if score < 0 {
		score = 0
	}
	return score
}

// bucketOverlap computes the intersection-over-union of two count
// distributions: sum(min)/sum(max), 0 when both are empty.
func bucketOverlap(a, b []int) float64 {
	var minSum, maxSum int
	for i := range a {
		if a[i] < b[i] {
			minSum += a[i]
			maxSum += b[i]
		} else {
			minSum += b[i]
			maxSum += a[i]
		}
	}
	if maxSum == 0 {
		return 0
	}
	return float64(minSum) / float64(maxSum)
}

// PreferredBucket returns the index of the largest count, or -1 when the user
// has no history at all.
func PreferredBucket(counts []int) int {
	best, bestIdx := 0, -1
	for i, c := range counts {
		if c > best {
			best = c
			bestIdx = i
		}
	}
	return bestIdx
}
