package service

import (
	"testing"
)

func TestRatingService_Deltas(t *testing.T) {
	ratingService := NewRatingService()

	tests := []struct {
		name         string
		winnerRating int
		loserRating  int
		expectedWin  int
	}{
		{
			name:         "Equal ratings",
			winnerRating: 1200,
			loserRating:  1200,
			expectedWin:  16,
		},
		{
			name:         "Favorite wins",
			winnerRating: 1400,
			loserRating:  1200,
			expectedWin:  8,
		},
		{
			name:         "Underdog wins",
			winnerRating: 1200,
			loserRating:  1400,
			expectedWin:  24,
		},
		{
			name:         "Huge favorite wins almost nothing",
			winnerRating: 2000,
			loserRating:  1200,
			expectedWin:  0,
		},
		{
			name:         "Huge underdog wins almost everything",
			winnerRating: 1200,
			loserRating:  2000,
			expectedWin:  32,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winnerDelta, loserDelta := ratingService.Deltas(tt.winnerRating, tt.loserRating)

			if winnerDelta != tt.expectedWin {
				t.Errorf("Deltas(%d, %d) winner = %d, want %d",
					tt.winnerRating, tt.loserRating, winnerDelta, tt.expectedWin)
			}
			if winnerDelta+loserDelta != 0 {
				t.Errorf("Deltas(%d, %d) not zero-sum: winner %d, loser %d",
					tt.winnerRating, tt.loserRating, winnerDelta, loserDelta)
			}
			if winnerDelta < 0 {
				t.Errorf("winner delta must never be negative, got %d", winnerDelta)
			}
		})
	}
}

func TestRatingService_DeltasSymmetry(t *testing.T) {
	ratingService := NewRatingService()

	// The same pair settled either way must transfer the complementary amount:
	// a win as favorite plus a win as underdog covers the full K factor.
	aWins, _ := ratingService.Deltas(1300, 1500)
	bWins, _ := ratingService.Deltas(1500, 1300)

	if aWins+bWins != int(KFactor) {
		t.Errorf("complementary wins should sum to K: %d + %d != %d", aWins, bWins, int(KFactor))
	}
}
