package models

import "time"

type SubmissionStatus string

const (
	SubmissionStatusPending       SubmissionStatus = "pending"
	SubmissionStatusCompiling     SubmissionStatus = "compiling"
	SubmissionStatusRunning       SubmissionStatus = "running"
	SubmissionStatusSolved        SubmissionStatus = "solved"
	SubmissionStatusFailed        SubmissionStatus = "failed"
	SubmissionStatusInternalError SubmissionStatus = "internal_error"
)

// Judged reports whether the submission has reached a terminal verdict.
func (s SubmissionStatus) Judged() bool {
	switch s {
	case SubmissionStatusSolved, SubmissionStatusFailed, SubmissionStatusInternalError:
		return true
	}
	return false
}

// Counted reports whether the submission counts as a recorded attempt for
// round completion. Internal errors are surfaced to the user as retryable and
// never decide a round.
func (s SubmissionStatus) Counted() bool {
	return s == SubmissionStatusSolved || s == SubmissionStatusFailed
}

type BattleSubmission struct {
	ID              string           `json:"id" db:"id"`
	BattleID        string           `json:"battleId" db:"battle_id"`
	RoundID         string           `json:"roundId" db:"round_id"`
	UserID          string           `json:"userId" db:"user_id"`
	ProblemID       string           `json:"problemId" db:"problem_id"`
	Language        string           `json:"language" db:"language"`
	CodeText        string           `json:"codeText" db:"code_text"`
	Status          SubmissionStatus `json:"status" db:"status"`
	SubmittedAt     time.Time        `json:"submittedAt" db:"submitted_at"`
	ExecutionTimeMs *int             `json:"executionTimeMs,omitempty" db:"execution_time_ms"`
	MemoryKb        *int             `json:"memoryKb,omitempty" db:"memory_kb"`
	Stdout          *string          `json:"stdout,omitempty" db:"stdout"`
	Stderr          *string          `json:"stderr,omitempty" db:"stderr"`
	CompileOutput   *string          `json:"compileOutput,omitempty" db:"compile_output"`
}

// Redacted returns a copy safe for spectators: source code and raw program
// output are stripped, verdict and timing stay visible.
func (s *BattleSubmission) Redacted() *BattleSubmission {
	c := *s
	c.CodeText = ""
	c.Stdout = nil
	c.Stderr = nil
	c.CompileOutput = nil
	return &c
}
