package models

import "time"

// DefaultRating seeds every user who has never completed a battle. Both the
// rating store and the rating engine consume this constant.
const DefaultRating = 1200

type Rating struct {
	UserID       string    `json:"userId" db:"user_id"`
	Rating       int       `json:"rating" db:"rating"`
	BattlesCount int       `json:"battlesCount" db:"battles_count"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	LastUpdated  time.Time `json:"lastUpdated" db:"last_updated"`
}
