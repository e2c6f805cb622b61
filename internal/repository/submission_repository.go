package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/database"
)

type SubmissionRepository struct {
	db *database.DB
}

func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, battleID, roundID, userID, problemID, language, codeText string) (*models.BattleSubmission, error) {
	sub := &models.BattleSubmission{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO battle_submissions (battle_id, round_id, user_id, problem_id, language, code_text, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING id, battle_id, round_id, user_id, problem_id, language, code_text, status, submitted_at
	`, battleID, roundID, userID, problemID, language, codeText).Scan(
		&sub.ID,
		&sub.BattleID,
		&sub.RoundID,
		&sub.UserID,
		&sub.ProblemID,
		&sub.Language,
		&sub.CodeText,
		&sub.Status,
		&sub.SubmittedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	return sub, nil
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.BattleSubmission, error) {
	sub := &models.BattleSubmission{}
	err := r.db.QueryRowContext(ctx, submissionSelect+` WHERE id = $1`, id).Scan(submissionFields(sub)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	return sub, nil
}

// UpdateStatus moves a submission to an intermediate pipeline state
// (compiling/running) without touching metrics.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE battle_submissions SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}
	return nil
}

// UpdateVerdict writes the terminal judging result back onto the submission.
func (r *SubmissionRepository) UpdateVerdict(
	ctx context.Context,
	id string,
	status models.SubmissionStatus,
	executionTimeMs, memoryKb *int,
	stdout, stderr, compileOutput *string,
) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE battle_submissions
		SET status = $2,
		    execution_time_ms = $3,
		    memory_kb = $4,
		    stdout = $5,
		    stderr = $6,
		    compile_output = $7
		WHERE id = $1
	`, id, status, executionTimeMs, memoryKb, stdout, stderr, compileOutput)
	if err != nil {
		return fmt.Errorf("failed to update submission verdict: %w", err)
	}
	return nil
}

// LatestForUser returns the user's most recent submission to the battle,
// which drives the per-user per-battle throttle.
func (r *SubmissionRepository) LatestForUser(ctx context.Context, battleID, userID string) (*models.BattleSubmission, error) {
	sub := &models.BattleSubmission{}
	err := r.db.QueryRowContext(ctx, submissionSelect+`
		WHERE battle_id = $1 AND user_id = $2
		ORDER BY submitted_at DESC
		LIMIT 1
	`, battleID, userID).Scan(submissionFields(sub)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest submission: %w", err)
	}
	return sub, nil
}

// ListByRound returns the round's submissions ordered by submission time.
// Round completion reads this as its single source of truth.
func (r *SubmissionRepository) ListByRound(ctx context.Context, roundID string) ([]*models.BattleSubmission, error) {
	rows, err := r.db.QueryContext(ctx, submissionSelect+`
		WHERE round_id = $1
		ORDER BY submitted_at ASC
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query round submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func (r *SubmissionRepository) ListByBattle(ctx context.Context, battleID string) ([]*models.BattleSubmission, error) {
	rows, err := r.db.QueryContext(ctx, submissionSelect+`
		WHERE battle_id = $1
		ORDER BY submitted_at ASC
	`, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query battle submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

const submissionSelect = `
	SELECT id, battle_id, round_id, user_id, problem_id, language, code_text,
	       status, submitted_at, execution_time_ms, memory_kb, stdout, stderr, compile_output
	FROM battle_submissions
`

func submissionFields(s *models.BattleSubmission) []interface{} {
	return []interface{}{
		&s.ID,
		&s.BattleID,
		&s.RoundID,
		&s.UserID,
		&s.ProblemID,
		&s.Language,
		&s.CodeText,
		&s.Status,
		&s.SubmittedAt,
		&s.ExecutionTimeMs,
		&s.MemoryKb,
		&s.Stdout,
		&s.Stderr,
		&s.CompileOutput,
	}
}

func scanSubmissions(rows *sql.Rows) ([]*models.BattleSubmission, error) {
	var subs []*models.BattleSubmission
	for rows.Next() {
		sub := &models.BattleSubmission{}
		if err := rows.Scan(submissionFields(sub)...); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
