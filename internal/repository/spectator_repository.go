package repository

import (
	"context"
	"fmt"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/database"
)

type SpectatorRepository struct {
	db *database.DB
}

func NewSpectatorRepository(db *database.DB) *SpectatorRepository {
	return &SpectatorRepository{db: db}
}

func (r *SpectatorRepository) Add(ctx context.Context, battleID, userID string) (*models.Spectator, error) {
	sp := &models.Spectator{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO battle_spectators (battle_id, user_id)
		VALUES ($1, $2)
		RETURNING battle_id, user_id, joined_at
	`, battleID, userID).Scan(&sp.BattleID, &sp.UserID, &sp.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add spectator: %w", err)
	}
	return sp, nil
}

func (r *SpectatorRepository) Exists(ctx context.Context, battleID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM battle_spectators WHERE battle_id = $1 AND user_id = $2
		)
	`, battleID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check spectator: %w", err)
	}
	return exists, nil
}

// Remove is idempotent: removing a non-spectator is a no-op.
func (r *SpectatorRepository) Remove(ctx context.Context, battleID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM battle_spectators WHERE battle_id = $1 AND user_id = $2
	`, battleID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove spectator: %w", err)
	}
	return nil
}

func (r *SpectatorRepository) ListUserIDs(ctx context.Context, battleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM battle_spectators
		WHERE battle_id = $1
		ORDER BY joined_at ASC
	`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spectators: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan spectator: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}
