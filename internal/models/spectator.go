package models

import "time"

// Spectator is an observer of a public battle. A user is either a spectator
// or a participant of a given battle, never both.
type Spectator struct {
	BattleID string    `json:"battleId" db:"battle_id"`
	UserID   string    `json:"userId" db:"user_id"`
	JoinedAt time.Time `json:"joinedAt" db:"joined_at"`
}
