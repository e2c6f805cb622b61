package repository

import (
	"context"
	"fmt"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/database"
)

type RatingRepository struct {
	db *database.DB
}

func NewRatingRepository(db *database.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// GetOrCreate returns the user's rating row, seeding new users at the default
// rating. The upsert keeps concurrent first reads from racing.
func (r *RatingRepository) GetOrCreate(ctx context.Context, userID string) (*models.Rating, error) {
	rating := &models.Rating{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ratings (user_id, rating)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, rating, battles_count, wins, losses, last_updated
	`, userID, models.DefaultRating).Scan(
		&rating.UserID,
		&rating.Rating,
		&rating.BattlesCount,
		&rating.Wins,
		&rating.Losses,
		&rating.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create rating: %w", err)
	}
	return rating, nil
}

// ApplyDelta shifts the user's rating by the settled delta and bumps the
// battle counters.
func (r *RatingRepository) ApplyDelta(ctx context.Context, userID string, delta int, won bool) error {
	winInc, lossInc := 0, 1
	if won {
		winInc, lossInc = 1, 0
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE ratings
		SET rating = rating + $2,
		    battles_count = battles_count + 1,
		    wins = wins + $3,
		    losses = losses + $4,
		    last_updated = NOW()
		WHERE user_id = $1
	`, userID, delta, winInc, lossInc)
	if err != nil {
		return fmt.Errorf("failed to apply rating delta: %w", err)
	}
	return nil
}
