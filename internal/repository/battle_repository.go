package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/database"
)

type BattleRepository struct {
	db *database.DB
}

func NewBattleRepository(db *database.DB) *BattleRepository {
	return &BattleRepository{db: db}
}

// CreateWithParticipants inserts the battle and both participant rows in one
// transaction. Battles begin in 'waiting' until the guest accepts.
func (r *BattleRepository) CreateWithParticipants(
	ctx context.Context,
	hostUserID, guestUserID string,
	hostRating, guestRating int,
	format models.BattleFormat,
	isPublic bool,
) (*models.Battle, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	battle := &models.Battle{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO battles (host_user_id, guest_user_id, status, format, is_public)
		VALUES ($1, $2, 'waiting', $3, $4)
		RETURNING id, host_user_id, guest_user_id, status, format, is_public, created_at
	`, hostUserID, guestUserID, format, isPublic).Scan(
		&battle.ID,
		&battle.HostUserID,
		&battle.GuestUserID,
		&battle.Status,
		&battle.Format,
		&battle.IsPublic,
		&battle.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create battle: %w", err)
	}

	insertParticipant := `
		INSERT INTO battle_participants (battle_id, user_id, is_host, rating_before)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, insertParticipant, battle.ID, hostUserID, true, hostRating); err != nil {
		return nil, fmt.Errorf("failed to create host participant: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertParticipant, battle.ID, guestUserID, false, guestRating); err != nil {
		return nil, fmt.Errorf("failed to create guest participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit battle creation: %w", err)
	}

	return battle, nil
}

func (r *BattleRepository) FindByID(ctx context.Context, id string) (*models.Battle, error) {
	battle := &models.Battle{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, host_user_id, guest_user_id, status, format, is_public,
		       winner_user_id, started_at, ended_at, created_at
		FROM battles
		WHERE id = $1
	`, id).Scan(
		&battle.ID,
		&battle.HostUserID,
		&battle.GuestUserID,
		&battle.Status,
		&battle.Format,
		&battle.IsPublic,
		&battle.WinnerUserID,
		&battle.StartedAt,
		&battle.EndedAt,
		&battle.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find battle: %w", err)
	}
	return battle, nil
}

// MarkInProgress applies waiting -> in_progress. Returns false when the
// battle was not in 'waiting', so callers can detect a lost race without a
// partial transition.
func (r *BattleRepository) MarkInProgress(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE battles
		SET status = 'in_progress', started_at = NOW()
		WHERE id = $1 AND status = 'waiting'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to start battle: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCancelled cancels a battle that is still waiting for acceptance. The
// status guard makes the accept-timeout timer safe: an already accepted
// battle is never retroactively cancelled.
func (r *BattleRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE battles
		SET status = 'cancelled', ended_at = NOW()
		WHERE id = $1 AND status = 'waiting'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel battle: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Complete applies in_progress -> completed and records the winner. Guarded
// so concurrent verdict evaluations settle on a single completion.
func (r *BattleRepository) Complete(ctx context.Context, id, winnerUserID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE battles
		SET status = 'completed', winner_user_id = $2, ended_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`, id, winnerUserID)
	if err != nil {
		return false, fmt.Errorf("failed to complete battle: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *BattleRepository) SetVisibility(ctx context.Context, id string, isPublic bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE battles SET is_public = $2 WHERE id = $1
	`, id, isPublic)
	if err != nil {
		return fmt.Errorf("failed to set battle visibility: %w", err)
	}
	return nil
}

// HasActiveBattle reports whether the user participates in any unterminated
// battle. The queue rejects joins for such users.
func (r *BattleRepository) HasActiveBattle(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM battles
			WHERE status IN ('waiting', 'in_progress')
			  AND (host_user_id = $1 OR guest_user_id = $1)
		)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active battles: %w", err)
	}
	return exists, nil
}

func (r *BattleRepository) Participants(ctx context.Context, battleID string) ([]*models.BattleParticipant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, battle_id, user_id, is_host, rating_before, rating_change, created_at
		FROM battle_participants
		WHERE battle_id = $1
		ORDER BY is_host DESC
	`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.BattleParticipant
	for rows.Next() {
		p := &models.BattleParticipant{}
		if err := rows.Scan(&p.ID, &p.BattleID, &p.UserID, &p.IsHost, &p.RatingBefore, &p.RatingChange, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// SetRatingChange records a participant's settled delta. The null guard makes
// rating settlement idempotent: re-running settlement for an already settled
// battle affects zero rows.
func (r *BattleRepository) SetRatingChange(ctx context.Context, battleID, userID string, change int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE battle_participants
		SET rating_change = $3
		WHERE battle_id = $1 AND user_id = $2 AND rating_change IS NULL
	`, battleID, userID, change)
	if err != nil {
		return false, fmt.Errorf("failed to set rating change: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecentOpponents returns the user's opponents from their most recent
// completed battles, newest first.
func (r *BattleRepository) RecentOpponents(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CASE WHEN host_user_id = $1 THEN guest_user_id ELSE host_user_id END AS opponent
		FROM battles
		WHERE status = 'completed'
		  AND (host_user_id = $1 OR guest_user_id = $1)
		ORDER BY ended_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent opponents: %w", err)
	}
	defer rows.Close()

	var opponents []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan opponent: %w", err)
		}
		opponents = append(opponents, id)
	}
	return opponents, rows.Err()
}

// ParticipationBuckets aggregates the user's completed battles into
// time-of-day and weekday counts, feeding the compatibility scorer.
func (r *BattleRepository) ParticipationBuckets(ctx context.Context, userID string) ([models.TimeOfDayBuckets]int, [models.WeekdayBuckets]int, error) {
	var timeCounts [models.TimeOfDayBuckets]int
	var weekdayCounts [models.WeekdayBuckets]int

	rows, err := r.db.QueryContext(ctx, `
		SELECT started_at
		FROM battles
		WHERE status = 'completed'
		  AND started_at IS NOT NULL
		  AND (host_user_id = $1 OR guest_user_id = $1)
	`, userID)
	if err != nil {
		return timeCounts, weekdayCounts, fmt.Errorf("failed to query participation history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var startedAt time.Time
		if err := rows.Scan(&startedAt); err != nil {
			return timeCounts, weekdayCounts, fmt.Errorf("failed to scan battle start: %w", err)
		}
		timeCounts[models.TimeOfDayBucket(startedAt)]++
		weekdayCounts[int(startedAt.Weekday())]++
	}
	return timeCounts, weekdayCounts, rows.Err()
}
