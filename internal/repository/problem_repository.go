package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/database"
)

type ProblemRepository struct {
	db *database.DB
}

func NewProblemRepository(db *database.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

// PickByRating selects a random problem whose rating is closest to the
// target, excluding problems already used in the battle. Falls back to the
// globally closest problem when nothing sits inside the band.
func (r *ProblemRepository) PickByRating(ctx context.Context, targetRating int, excludeIDs []string) (*models.Problem, error) {
	problem := &models.Problem{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, rating, summary
		FROM problems
		WHERE id != ALL($2)
		ORDER BY ABS(rating - $1) ASC, RANDOM()
		LIMIT 1
	`, targetRating, pq.Array(excludeIDs)).Scan(
		&problem.ID,
		&problem.Title,
		&problem.Rating,
		&problem.Summary,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pick problem: %w", err)
	}
	return problem, nil
}
