package models

import "time"

// BattleRound is one problem-solving bout within a battle. A battle has at
// most one open round (EndedAt null) at any time; round numbers are 1-based
// and contiguous.
type BattleRound struct {
	ID           string     `json:"id" db:"id"`
	BattleID     string     `json:"battleId" db:"battle_id"`
	RoundNumber  int        `json:"roundNumber" db:"round_number"`
	ProblemID    string     `json:"problemId" db:"problem_id"`
	Rating       int        `json:"rating" db:"rating"`
	WinnerUserID *string    `json:"winnerUserId,omitempty" db:"winner_user_id"`
	StartedAt    time.Time  `json:"startedAt" db:"started_at"`
	EndedAt      *time.Time `json:"endedAt,omitempty" db:"ended_at"`
}

func (r *BattleRound) Open() bool {
	return r.EndedAt == nil
}
