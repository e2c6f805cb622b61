package models

import "time"

// Bucket counts for a user's historical battle participation. Four time-of-day
// buckets (night/morning/afternoon/evening) and seven weekday buckets.
const (
	TimeOfDayBuckets = 4
	WeekdayBuckets   = 7
)

// TimeOfDayBucket maps an hour of day onto one of the four buckets.
func TimeOfDayBucket(t time.Time) int {
	switch h := t.Hour(); {
	case h < 6:
		return 0 // night
	case h < 12:
		return 1 // morning
	case h < 18:
		return 2 // afternoon
	default:
		return 3 // evening
	}
}

// QueueEntry is a waiting user's matchmaking record. Exactly one live entry
// exists per user; entries are serialized to the shared queue store as JSON.
type QueueEntry struct {
	UserID             string                 `json:"userId"`
	Rating             int                    `json:"rating"`
	JoinedAt           time.Time              `json:"joinedAt"`
	Format             BattleFormat           `json:"format"`
	PreferredTimeOfDay int                    `json:"preferredTimeOfDay"` // -1 when unknown
	PreferredWeekday   int                    `json:"preferredWeekday"`   // -1 when unknown
	RecentOpponentIDs  []string               `json:"recentOpponentIds,omitempty"`
	TimeOfDayCounts    [TimeOfDayBuckets]int  `json:"timeOfDayCounts"`
	WeekdayCounts      [WeekdayBuckets]int    `json:"weekdayCounts"`
}

// PlayedRecently reports whether the given user is in the tracked
// recent-opponent window.
func (e *QueueEntry) PlayedRecently(userID string) bool {
	for _, id := range e.RecentOpponentIDs {
		if id == userID {
			return true
		}
	}
	return false
}
