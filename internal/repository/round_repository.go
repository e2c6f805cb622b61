package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/database"
)

type RoundRepository struct {
	db *database.DB
}

func NewRoundRepository(db *database.DB) *RoundRepository {
	return &RoundRepository{db: db}
}

func (r *RoundRepository) Create(ctx context.Context, battleID string, roundNumber int, problemID string, rating int) (*models.BattleRound, error) {
	round := &models.BattleRound{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO battle_rounds (battle_id, round_number, problem_id, rating)
		VALUES ($1, $2, $3, $4)
		RETURNING id, battle_id, round_number, problem_id, rating, winner_user_id, started_at, ended_at
	`, battleID, roundNumber, problemID, rating).Scan(
		&round.ID,
		&round.BattleID,
		&round.RoundNumber,
		&round.ProblemID,
		&round.Rating,
		&round.WinnerUserID,
		&round.StartedAt,
		&round.EndedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	return round, nil
}

func (r *RoundRepository) FindByID(ctx context.Context, id string) (*models.BattleRound, error) {
	round := &models.BattleRound{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, battle_id, round_number, problem_id, rating, winner_user_id, started_at, ended_at
		FROM battle_rounds
		WHERE id = $1
	`, id).Scan(
		&round.ID,
		&round.BattleID,
		&round.RoundNumber,
		&round.ProblemID,
		&round.Rating,
		&round.WinnerUserID,
		&round.StartedAt,
		&round.EndedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find round: %w", err)
	}
	return round, nil
}

// OpenRound returns the battle's single open round, or nil when none exists.
func (r *RoundRepository) OpenRound(ctx context.Context, battleID string) (*models.BattleRound, error) {
	round := &models.BattleRound{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, battle_id, round_number, problem_id, rating, winner_user_id, started_at, ended_at
		FROM battle_rounds
		WHERE battle_id = $1 AND ended_at IS NULL
		ORDER BY round_number DESC
		LIMIT 1
	`, battleID).Scan(
		&round.ID,
		&round.BattleID,
		&round.RoundNumber,
		&round.ProblemID,
		&round.Rating,
		&round.WinnerUserID,
		&round.StartedAt,
		&round.EndedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open round: %w", err)
	}
	return round, nil
}

// Close awards the round and stamps ended_at. Guarded on ended_at IS NULL so
// two near-simultaneous verdict evaluations close the round exactly once.
func (r *RoundRepository) Close(ctx context.Context, roundID, winnerUserID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE battle_rounds
		SET winner_user_id = $2, ended_at = NOW()
		WHERE id = $1 AND ended_at IS NULL
	`, roundID, winnerUserID)
	if err != nil {
		return false, fmt.Errorf("failed to close round: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RoundRepository) ListByBattle(ctx context.Context, battleID string) ([]*models.BattleRound, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, battle_id, round_number, problem_id, rating, winner_user_id, started_at, ended_at
		FROM battle_rounds
		WHERE battle_id = $1
		ORDER BY round_number ASC
	`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*models.BattleRound
	for rows.Next() {
		round := &models.BattleRound{}
		if err := rows.Scan(
			&round.ID,
			&round.BattleID,
			&round.RoundNumber,
			&round.ProblemID,
			&round.Rating,
			&round.WinnerUserID,
			&round.StartedAt,
			&round.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

// CountWins tallies closed-round wins per user for a battle.
func (r *RoundRepository) CountWins(ctx context.Context, battleID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT winner_user_id, COUNT(*)
		FROM battle_rounds
		WHERE battle_id = $1 AND winner_user_id IS NOT NULL
		GROUP BY winner_user_id
	`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to count round wins: %w", err)
	}
	defer rows.Close()

	wins := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan win count: %w", err)
		}
		wins[userID] = count
	}
	return wins, rows.Err()
}
