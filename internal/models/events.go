package models

// Event is a notification payload pushed to connected users. Every variant
// carries a type discriminator so clients can switch on it; the set below is
// closed.
type Event interface {
	EventType() string
}

type QueueJoinedEvent struct {
	Position int `json:"position"` // 1-based, ordered by joinedAt
	PoolSize int `json:"poolSize"`
}

func (QueueJoinedEvent) EventType() string { return "queue_joined" }

type QueueLeftEvent struct{}

func (QueueLeftEvent) EventType() string { return "queue_left" }

type QueueTimeoutEvent struct {
	WaitedSeconds int `json:"waitedSeconds"`
}

func (QueueTimeoutEvent) EventType() string { return "queue_timeout" }

type BattleMatchedEvent struct {
	BattleID       string       `json:"battleId"`
	OpponentID     string       `json:"opponentId"`
	OpponentRating int          `json:"opponentRating"`
	Format         BattleFormat `json:"format"`
	IsHost         bool         `json:"isHost"`
}

func (BattleMatchedEvent) EventType() string { return "battle_matched" }

type BattleStartedEvent struct {
	BattleID string `json:"battleId"`
}

func (BattleStartedEvent) EventType() string { return "battle_started" }

type RoundStartedEvent struct {
	BattleID      string `json:"battleId"`
	RoundID       string `json:"roundId"`
	RoundNumber   int    `json:"roundNumber"`
	ProblemID     string `json:"problemId"`
	ProblemTitle  string `json:"problemTitle"`
	ProblemRating int    `json:"problemRating"`
}

func (RoundStartedEvent) EventType() string { return "battle_round_started" }

type SubmissionJudgedEvent struct {
	BattleID        string           `json:"battleId"`
	RoundID         string           `json:"roundId"`
	SubmissionID    string           `json:"submissionId"`
	Status          SubmissionStatus `json:"status"`
	ExecutionTimeMs int              `json:"executionTimeMs,omitempty"`
	Message         string           `json:"message,omitempty"`
}

func (SubmissionJudgedEvent) EventType() string { return "battle_submission_judged" }

type RoundEndedEvent struct {
	BattleID     string `json:"battleId"`
	RoundID      string `json:"roundId"`
	RoundNumber  int    `json:"roundNumber"`
	WinnerUserID string `json:"winnerUserId"`
}

func (RoundEndedEvent) EventType() string { return "battle_round_ended" }

type BattleEndedEvent struct {
	BattleID     string `json:"battleId"`
	WinnerUserID string `json:"winnerUserId"`
	RatingChange int    `json:"ratingChange,omitempty"`
	NewRating    int    `json:"newRating,omitempty"`
}

func (BattleEndedEvent) EventType() string { return "battle_ended" }

type BattleCancelledEvent struct {
	BattleID string `json:"battleId"`
	Reason   string `json:"reason"`
}

func (BattleCancelledEvent) EventType() string { return "battle_cancelled" }

type VisibilityChangedEvent struct {
	BattleID string `json:"battleId"`
	IsPublic bool   `json:"isPublic"`
}

func (VisibilityChangedEvent) EventType() string { return "battle_visibility_changed" }
