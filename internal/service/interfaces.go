package service

import (
	"context"
	"time"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/judge"
)

// Store interfaces are satisfied by the repository package in production and
// by in-memory fakes in tests; services never construct their own
// collaborators.

type BattleStore interface {
	CreateWithParticipants(ctx context.Context, hostUserID, guestUserID string, hostRating, guestRating int, format models.BattleFormat, isPublic bool) (*models.Battle, error)
	FindByID(ctx context.Context, id string) (*models.Battle, error)
	MarkInProgress(ctx context.Context, id string) (bool, error)
	MarkCancelled(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id, winnerUserID string) (bool, error)
	SetVisibility(ctx context.Context, id string, isPublic bool) error
	HasActiveBattle(ctx context.Context, userID string) (bool, error)
	Participants(ctx context.Context, battleID string) ([]*models.BattleParticipant, error)
	SetRatingChange(ctx context.Context, battleID, userID string, change int) (bool, error)
	RecentOpponents(ctx context.Context, userID string, limit int) ([]string, error)
	ParticipationBuckets(ctx context.Context, userID string) ([models.TimeOfDayBuckets]int, [models.WeekdayBuckets]int, error)
}

type RoundStore interface {
	Create(ctx context.Context, battleID string, roundNumber int, problemID string, rating int) (*models.BattleRound, error)
	FindByID(ctx context.Context, id string) (*models.BattleRound, error)
	OpenRound(ctx context.Context, battleID string) (*models.BattleRound, error)
	Close(ctx context.Context, roundID, winnerUserID string) (bool, error)
	ListByBattle(ctx context.Context, battleID string) ([]*models.BattleRound, error)
	CountWins(ctx context.Context, battleID string) (map[string]int, error)
}

type SubmissionStore interface {
	Create(ctx context.Context, battleID, roundID, userID, problemID, language, codeText string) (*models.BattleSubmission, error)
	FindByID(ctx context.Context, id string) (*models.BattleSubmission, error)
	UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus) error
	UpdateVerdict(ctx context.Context, id string, status models.SubmissionStatus, executionTimeMs, memoryKb *int, stdout, stderr, compileOutput *string) error
	LatestForUser(ctx context.Context, battleID, userID string) (*models.BattleSubmission, error)
	ListByRound(ctx context.Context, roundID string) ([]*models.BattleSubmission, error)
	ListByBattle(ctx context.Context, battleID string) ([]*models.BattleSubmission, error)
}

type RatingStore interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Rating, error)
	ApplyDelta(ctx context.Context, userID string, delta int, won bool) error
}

type SpectatorStore interface {
	Add(ctx context.Context, battleID, userID string) (*models.Spectator, error)
	Exists(ctx context.Context, battleID, userID string) (bool, error)
	Remove(ctx context.Context, battleID, userID string) error
	ListUserIDs(ctx context.Context, battleID string) ([]string, error)
}

type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// QueueStore is the shared low-latency waiting room. RemovePair must be
// atomic remove-if-both-present; see pkg/distributed for the Redis
// implementation.
type QueueStore interface {
	Add(ctx context.Context, entry *models.QueueEntry) (bool, error)
	Get(ctx context.Context, userID string) (*models.QueueEntry, error)
	Remove(ctx context.Context, userID string) (bool, error)
	RemovePair(ctx context.Context, userA, userB string) (bool, error)
	Entries(ctx context.Context) ([]*models.QueueEntry, error)
	Position(ctx context.Context, userID string) (int, error)
	Size(ctx context.Context) (int64, error)
	StaleEntries(ctx context.Context, cutoff time.Time) ([]*models.QueueEntry, error)
}

// BattleSnapshotCache is an optional hot cache for battle rows.
type BattleSnapshotCache interface {
	Set(ctx context.Context, battle *models.Battle) error
	Get(ctx context.Context, battleID string) (*models.Battle, error)
	Invalidate(ctx context.Context, battleID string) error
}

// Notifier pushes events to connected users, fire-and-forget with at-most-once
// delivery. The websocket hub implements it.
type Notifier interface {
	SendToUser(userID string, event models.Event)
	SendToUsers(userIDs []string, event models.Event)
}

// JudgeDispatcher hands a submission to the asynchronous judging pipeline.
type JudgeDispatcher interface {
	Submit(req *judge.ExecuteRequest) error
}

// ProblemSource selects a problem near the target rating, skipping problems
// the battle already used.
type ProblemSource interface {
	PickByRating(ctx context.Context, targetRating int, excludeIDs []string) (*models.Problem, error)
}

// BattleCreator is the slice of the lifecycle controller the matchmaking
// queue needs.
type BattleCreator interface {
	CreateBattle(ctx context.Context, hostUserID, guestUserID string, format models.BattleFormat) (*models.Battle, error)
}
