package service

import "math"

// KFactor is the Elo volatility applied to every battle settlement.
const KFactor = 32.0

// RatingService computes zero-sum Elo deltas for a completed battle. A battle
// is treated as a single game between the two participants: winner scores 1,
// loser scores 0.
type RatingService struct{}

func NewRatingService() *RatingService {
	return &RatingService{}
}

// Deltas returns the rating adjustments for winner and loser. The loser's
// delta is the exact negation of the winner's, so the pair always sums to
// zero regardless of rounding.
func (s *RatingService) Deltas(winnerRating, loserRating int) (winnerDelta, loserDelta int) {
	expected := s.expectedScore(float64(winnerRating), float64(loserRating))
	winnerDelta = int(math.Round(KFactor * (1.0 - expected)))
	return winnerDelta, -winnerDelta
}

// expectedScore is the standard Elo win expectancy of a against b.
func (s *RatingService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
