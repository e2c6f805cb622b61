package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/distributed"
)

// recentOpponentWindow is how many past opponents the rematch penalty tracks.
const recentOpponentWindow = 5

const sweepLockKey = "mmq:sweep:lock"

// MatchmakingService owns the waiting room: joins, leaves, the pairing
// decision on every join, and the periodic staleness sweep.
type MatchmakingService struct {
	queue    QueueStore
	battles  BattleStore
	ratings  RatingStore
	creator  BattleCreator
	notifier Notifier
	locks    *distributed.RedisLockManager
	logger   *zap.Logger

	sweepInterval time.Duration
	maxWait       time.Duration

	// matchMu serializes the score-and-claim step within this process; the
	// queue store's atomic pair removal guards against other instances.
	matchMu sync.Mutex

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMatchmakingService(
	queue QueueStore,
	battles BattleStore,
	ratings RatingStore,
	creator BattleCreator,
	notifier Notifier,
	sweepInterval time.Duration,
	maxWait time.Duration,
) *MatchmakingService {
	logger, _ := zap.NewProduction()

	return &MatchmakingService{
		queue:         queue,
		battles:       battles,
		ratings:       ratings,
		creator:       creator,
		notifier:      notifier,
		logger:        logger,
		sweepInterval: sweepInterval,
		maxWait:       maxWait,
		stopChan:      make(chan struct{}),
	}
}

// SetLockManager enables cross-instance coordination of the staleness sweep.
// Without it every instance sweeps on its own, which is safe but noisy.
func (s *MatchmakingService) SetLockManager(locks *distributed.RedisLockManager) {
	s.locks = locks
}

// JoinResult reports the outcome of a queue join: either a created battle or
// a queue position.
type JoinResult struct {
	Matched  bool   `json:"matched"`
	BattleID string `json:"battleId,omitempty"`
	Position int    `json:"position,omitempty"`
	PoolSize int    `json:"poolSize,omitempty"`
}

// JoinQueue adds the user to the waiting room and immediately tries to pair
// them against the current pool.
func (s *MatchmakingService) JoinQueue(ctx context.Context, userID string, format models.BattleFormat) (*JoinResult, error) {
	if !format.Valid() {
		return nil, ErrInvalidFormat
	}

	active, err := s.battles.HasActiveBattle(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active battles: %w", err)
	}
	if active {
		return nil, ErrActiveBattle
	}

	entry, err := s.buildEntry(ctx, userID, format)
	if err != nil {
		return nil, err
	}

	added, err := s.queue.Add(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to join queue: %w", err)
	}
	if !added {
		return nil, ErrAlreadyInQueue
	}

	s.logger.Info("User joined matchmaking queue",
		zap.String("userId", userID),
		zap.Int("rating", entry.Rating),
		zap.String("format", string(format)))

	if battle := s.tryMatch(ctx, entry); battle != nil {
		return &JoinResult{Matched: true, BattleID: battle.ID}, nil
	}

	position, err := s.queue.Position(ctx, userID)
	if err != nil {
		// The entry may already have been claimed by a concurrent join.
		position = 0
	}
	size, _ := s.queue.Size(ctx)

	if position > 0 {
		s.notifier.SendToUser(userID, models.QueueJoinedEvent{
			Position: position,
			PoolSize: int(size),
		})
	}

	return &JoinResult{Position: position, PoolSize: int(size)}, nil
}

// buildEntry enriches the queue entry with the user's rating, recent
// opponents, and historical participation buckets.
func (s *MatchmakingService) buildEntry(ctx context.Context, userID string, format models.BattleFormat) (*models.QueueEntry, error) {
	rating, err := s.ratings.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rating: %w", err)
	}

	opponents, err := s.battles.RecentOpponents(ctx, userID, recentOpponentWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent opponents: %w", err)
	}

	timeCounts, weekdayCounts, err := s.battles.ParticipationBuckets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participation history: %w", err)
	}

	return &models.QueueEntry{
		UserID:             userID,
		Rating:             rating.Rating,
		JoinedAt:           time.Now(),
		Format:             format,
		PreferredTimeOfDay: PreferredBucket(timeCounts[:]),
		PreferredWeekday:   PreferredBucket(weekdayCounts[:]),
		RecentOpponentIDs:  opponents,
		TimeOfDayCounts:    timeCounts,
		WeekdayCounts:      weekdayCounts,
	}, nil
}

// tryMatch picks the best opponent for the joiner and, when one survives the
// selection rules, claims both entries and creates the battle. Returns nil
// when the joiner stays queued.
func (s *MatchmakingService) tryMatch(ctx context.Context, joiner *models.QueueEntry) *models.Battle {
	s.matchMu.Lock()
	defer s.matchMu.Unlock()

	entries, err := s.queue.Entries(ctx)
	if err != nil {
		s.logger.Error("Failed to read queue pool", zap.Error(err))
		return nil
	}

	candidate := selectOpponent(joiner, entries)
	if candidate == nil {
		return nil
	}

	// Claim both entries before any battle side effects. If another instance
	// got here first the pair removal fails and the joiner simply stays
	// queued.
	claimed, err := s.queue.RemovePair(ctx, joiner.UserID, candidate.UserID)
	if err != nil {
		s.logger.Error("Failed to claim matched pair", zap.Error(err))
		return nil
	}
	if !claimed {
		return nil
	}

	battle, err := s.creator.CreateBattle(ctx, joiner.UserID, candidate.UserID, joiner.Format)
	if err != nil {
		// Entries are already gone from the queue; put both users back so
		// the failed creation is recoverable rather than silent loss.
		s.logger.Error("Battle creation failed after pair claim, re-queueing",
			zap.String("host", joiner.UserID),
			zap.String("guest", candidate.UserID),
			zap.Error(err))
		s.requeue(ctx, joiner)
		s.requeue(ctx, candidate)
		return nil
	}

	s.notifier.SendToUser(joiner.UserID, models.BattleMatchedEvent{
		BattleID:       battle.ID,
		OpponentID:     candidate.UserID,
		OpponentRating: candidate.Rating,
		Format:         battle.Format,
		IsHost:         true,
	})
	s.notifier.SendToUser(candidate.UserID, models.BattleMatchedEvent{
		BattleID:       battle.ID,
		OpponentID:     joiner.UserID,
		OpponentRating: joiner.Rating,
		Format:         battle.Format,
		IsHost:         false,
	})

	s.logger.Info("Matched pair",
		zap.String("battleId", battle.ID),
		zap.String("host", joiner.UserID),
		zap.String("guest", candidate.UserID),
		zap.Int("ratingGap", abs(joiner.Rating-candidate.Rating)))

	return battle
}

func (s *MatchmakingService) requeue(ctx context.Context, entry *models.QueueEntry) {
	if _, err := s.queue.Add(ctx, entry); err != nil {
		s.logger.Error("Failed to re-queue user", zap.String("userId", entry.UserID), zap.Error(err))
	}
}

// selectOpponent applies the pairing rules: take the highest compatibility
// score, but when the scored pick sits more than the override gap away in
// rating, discard it and fall back to the plain rating window
// [rating-100, rating+200] choosing the minimum absolute difference. Ties
// keep insertion order, which entries already follow.
func selectOpponent(joiner *models.QueueEntry, entries []*models.QueueEntry) *models.QueueEntry {
	var best *models.QueueEntry
	bestScore := -1.0
	for _, e := range entries {
		if e.UserID == joiner.UserID {
			continue
		}
		if score := CompatibilityScore(joiner, e); score > bestScore {
			best = e
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	if abs(joiner.Rating-best.Rating) <= scoreOverrideRatingGap {
		return best
	}

	// Scored pick overridden: plain rating-window fallback.
	var fallback *models.QueueEntry
	fallbackDiff := 0
	for _, e := range entries {
		if e.UserID == joiner.UserID {
			continue
		}
		if e.Rating < joiner.Rating-ratingWindowBelow || e.Rating > joiner.Rating+ratingWindowAbove {
			continue
		}
		diff := abs(joiner.Rating - e.Rating)
		if fallback == nil || diff < fallbackDiff {
			fallback = e
			fallbackDiff = diff
		}
	}
	return fallback
}

// LeaveQueue removes the user's entry. Idempotent: leaving while not queued
// reports left=false without error.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, userID string) (bool, error) {
	removed, err := s.queue.Remove(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to leave queue: %w", err)
	}
	if removed {
		s.notifier.SendToUser(userID, models.QueueLeftEvent{})
		s.logger.Info("User left matchmaking queue", zap.String("userId", userID))
	}
	return removed, nil
}

// QueueStatus reports the user's 1-based position and the pool size.
type QueueStatus struct {
	Queued   bool `json:"queued"`
	Position int  `json:"position,omitempty"`
	PoolSize int  `json:"poolSize"`
}

func (s *MatchmakingService) GetQueueStatus(ctx context.Context, userID string) (*QueueStatus, error) {
	size, err := s.queue.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue size: %w", err)
	}

	position, err := s.queue.Position(ctx, userID)
	if err != nil {
		return &QueueStatus{Queued: false, PoolSize: int(size)}, nil
	}
	return &QueueStatus{Queued: true, Position: position, PoolSize: int(size)}, nil
}

// Start launches the staleness sweep loop.
func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting matchmaking sweep",
		zap.Duration("interval", s.sweepInterval),
		zap.Duration("maxWait", s.maxWait))

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop shuts the sweep loop down and waits for it.
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Matchmaking sweep stopped")
}

func (s *MatchmakingService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// Sweep evicts entries older than the max wait and notifies their owners.
func (s *MatchmakingService) Sweep(ctx context.Context) {
	if s.locks != nil {
		lock, err := s.locks.Acquire(ctx, sweepLockKey, uuid.New().String(), s.sweepInterval)
		if err != nil {
			// Another instance holds the sweep for this interval.
			return
		}
		defer lock.Release(ctx)
	}

	cutoff := time.Now().Add(-s.maxWait)
	stale, err := s.queue.StaleEntries(ctx, cutoff)
	if err != nil {
		s.logger.Error("Staleness sweep failed", zap.Error(err))
		return
	}

	evicted := 0
	for _, entry := range stale {
		removed, err := s.queue.Remove(ctx, entry.UserID)
		if err != nil {
			s.logger.Error("Failed to evict stale entry",
				zap.String("userId", entry.UserID),
				zap.Error(err))
			continue
		}
		if !removed {
			continue
		}
		evicted++
		s.notifier.SendToUser(entry.UserID, models.QueueTimeoutEvent{
			WaitedSeconds: int(time.Since(entry.JoinedAt).Seconds()),
		})
	}

	if evicted > 0 {
		s.logger.Info("Staleness sweep evicted entries", zap.Int("evicted", evicted))
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
