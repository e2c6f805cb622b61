package models

import "time"

type BattleStatus string

const (
	BattleStatusWaiting    BattleStatus = "waiting"
	BattleStatusInProgress BattleStatus = "in_progress"
	BattleStatusCompleted  BattleStatus = "completed"
	BattleStatusCancelled  BattleStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s BattleStatus) Terminal() bool {
	return s == BattleStatusCompleted || s == BattleStatusCancelled
}

type BattleFormat string

const (
	FormatBestOf1 BattleFormat = "best_of_1"
	FormatBestOf3 BattleFormat = "best_of_3"
	FormatBestOf5 BattleFormat = "best_of_5"
)

func (f BattleFormat) Valid() bool {
	switch f {
	case FormatBestOf1, FormatBestOf3, FormatBestOf5:
		return true
	}
	return false
}

// WinsNeeded is the round-win count that ends the battle.
func (f BattleFormat) WinsNeeded() int {
	switch f {
	case FormatBestOf3:
		return 2
	case FormatBestOf5:
		return 3
	default:
		return 1
	}
}

type Battle struct {
	ID           string       `json:"id" db:"id"`
	HostUserID   string       `json:"hostUserId" db:"host_user_id"`
	GuestUserID  string       `json:"guestUserId" db:"guest_user_id"`
	Status       BattleStatus `json:"status" db:"status"`
	Format       BattleFormat `json:"format" db:"format"`
	IsPublic     bool         `json:"isPublic" db:"is_public"`
	WinnerUserID *string      `json:"winnerUserId,omitempty" db:"winner_user_id"`
	StartedAt    *time.Time   `json:"startedAt,omitempty" db:"started_at"`
	EndedAt      *time.Time   `json:"endedAt,omitempty" db:"ended_at"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
}

// UserIDs returns host and guest in a slice, for bulk notification sends.
func (b *Battle) UserIDs() []string {
	return []string{b.HostUserID, b.GuestUserID}
}

// HasParticipant reports whether the user plays in this battle.
func (b *Battle) HasParticipant(userID string) bool {
	return b.HostUserID == userID || b.GuestUserID == userID
}

// Opponent returns the other participant's user ID.
func (b *Battle) Opponent(userID string) string {
	if b.HostUserID == userID {
		return b.GuestUserID
	}
	return b.HostUserID
}

type BattleParticipant struct {
	ID           string    `json:"id" db:"id"`
	BattleID     string    `json:"battleId" db:"battle_id"`
	UserID       string    `json:"userId" db:"user_id"`
	IsHost       bool      `json:"isHost" db:"is_host"`
	RatingBefore int       `json:"ratingBefore" db:"rating_before"`
	RatingChange *int      `json:"ratingChange,omitempty" db:"rating_change"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
