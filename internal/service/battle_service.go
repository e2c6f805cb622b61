package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/judge"
)

const (
	// minCodeLength rejects near-empty submissions after trimming.
	minCodeLength = 10

	// roundRatingStep raises the problem target rating on every round.
	roundRatingStep = 100
)

// BattleService drives a battle through its state machine: waiting ->
// in_progress -> completed, with the independent accept-timeout edge to
// cancelled. All transitions are persisted before any notification goes out;
// a failed write leaves the battle untouched.
type BattleService struct {
	battles      BattleStore
	rounds       RoundStore
	submissions  SubmissionStore
	spectators   SpectatorStore
	ratings      RatingStore
	ratingEngine *RatingService
	problems     ProblemSource
	judge        JudgeDispatcher
	notifier     Notifier
	cache        BattleSnapshotCache // optional
	logger       *zap.Logger

	acceptTimeout     time.Duration
	throttle          time.Duration
	judgeTimeLimitSec int
	judgeMemoryMB     int
}

type BattleServiceConfig struct {
	AcceptTimeout      time.Duration
	SubmissionThrottle time.Duration
	JudgeTimeLimitSec  int
	JudgeMemoryMB      int
}

func NewBattleService(
	battles BattleStore,
	rounds RoundStore,
	submissions SubmissionStore,
	spectators SpectatorStore,
	ratings RatingStore,
	ratingEngine *RatingService,
	problems ProblemSource,
	judgeDispatcher JudgeDispatcher,
	notifier Notifier,
	cfg BattleServiceConfig,
) *BattleService {
	logger, _ := zap.NewProduction()

	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = 15 * time.Second
	}
	if cfg.SubmissionThrottle <= 0 {
		cfg.SubmissionThrottle = 10 * time.Second
	}
	if cfg.JudgeTimeLimitSec <= 0 {
		cfg.JudgeTimeLimitSec = judge.DefaultTimeLimitSec
	}
	if cfg.JudgeMemoryMB <= 0 {
		cfg.JudgeMemoryMB = judge.DefaultMemoryLimitMB
	}

	return &BattleService{
		battles:           battles,
		rounds:            rounds,
		submissions:       submissions,
		spectators:        spectators,
		ratings:           ratings,
		ratingEngine:      ratingEngine,
		problems:          problems,
		judge:             judgeDispatcher,
		notifier:          notifier,
		logger:            logger,
		acceptTimeout:     cfg.AcceptTimeout,
		throttle:          cfg.SubmissionThrottle,
		judgeTimeLimitSec: cfg.JudgeTimeLimitSec,
		judgeMemoryMB:     cfg.JudgeMemoryMB,
	}
}

// SetSnapshotCache enables the hot battle cache.
func (s *BattleService) SetSnapshotCache(cache BattleSnapshotCache) {
	s.cache = cache
}

// CreateBattle persists a waiting battle with both participant rows and arms
// the accept-timeout. The guest has the accept window, counted from creation,
// to accept before the battle cancels itself.
func (s *BattleService) CreateBattle(ctx context.Context, hostUserID, guestUserID string, format models.BattleFormat) (*models.Battle, error) {
	if !format.Valid() {
		return nil, ErrInvalidFormat
	}

	hostRating, err := s.ratings.GetOrCreate(ctx, hostUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host rating: %w", err)
	}
	guestRating, err := s.ratings.GetOrCreate(ctx, guestUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guest rating: %w", err)
	}

	battle, err := s.battles.CreateWithParticipants(ctx, hostUserID, guestUserID, hostRating.Rating, guestRating.Rating, format, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create battle: %w", err)
	}

	s.cacheSnapshot(ctx, battle)

	// The timeout is armed at creation, not at accept. It re-checks the
	// persisted status before acting, so an accepted battle is never
	// cancelled retroactively.
	battleID := battle.ID
	time.AfterFunc(s.acceptTimeout, func() {
		s.CancelIfUnaccepted(context.Background(), battleID)
	})

	s.logger.Info("Battle created",
		zap.String("battleId", battle.ID),
		zap.String("host", hostUserID),
		zap.String("guest", guestUserID),
		zap.String("format", string(format)))

	return battle, nil
}

// CancelIfUnaccepted cancels the battle if it is still waiting. Safe to call
// any number of times; only the first call on a waiting battle does anything.
func (s *BattleService) CancelIfUnaccepted(ctx context.Context, battleID string) {
	cancelled, err := s.battles.MarkCancelled(ctx, battleID)
	if err != nil {
		s.logger.Error("Accept-timeout cancellation failed",
			zap.String("battleId", battleID),
			zap.Error(err))
		return
	}
	if !cancelled {
		return
	}

	s.invalidateSnapshot(ctx, battleID)

	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil || battle == nil {
		return
	}

	s.notifier.SendToUsers(battle.UserIDs(), models.BattleCancelledEvent{
		BattleID: battleID,
		Reason:   "accept_timeout",
	})

	s.logger.Info("Battle cancelled by accept timeout", zap.String("battleId", battleID))
}

// AcceptBattle lets the invited guest take the battle out of waiting, which
// starts round 1.
func (s *BattleService) AcceptBattle(ctx context.Context, battleID, userID string) (*models.Battle, error) {
	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load battle: %w", err)
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	if battle.GuestUserID != userID {
		return nil, ErrNotGuest
	}
	return s.StartBattle(ctx, battleID)
}

// StartBattle applies waiting -> in_progress and opens round 1.
func (s *BattleService) StartBattle(ctx context.Context, battleID string) (*models.Battle, error) {
	started, err := s.battles.MarkInProgress(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to start battle: %w", err)
	}
	if !started {
		return nil, ErrBattleNotWaiting
	}

	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload battle: %w", err)
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}

	s.cacheSnapshot(ctx, battle)

	s.notifier.SendToUsers(battle.UserIDs(), models.BattleStartedEvent{BattleID: battleID})

	if err := s.createRound(ctx, battle, 1); err != nil {
		return nil, err
	}

	s.logger.Info("Battle started", zap.String("battleId", battleID))
	return battle, nil
}

// createRound selects a problem near the battle's target rating and opens the
// round. The target climbs with the round number.
func (s *BattleService) createRound(ctx context.Context, battle *models.Battle, roundNumber int) error {
	open, err := s.rounds.OpenRound(ctx, battle.ID)
	if err != nil {
		return fmt.Errorf("failed to check open round: %w", err)
	}
	if open != nil {
		return fmt.Errorf("battle %s already has an open round", battle.ID)
	}

	participants, err := s.battles.Participants(ctx, battle.ID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	ratingSum := 0
	for _, p := range participants {
		ratingSum += p.RatingBefore
	}
	target := ratingSum/len(participants) + (roundNumber-1)*roundRatingStep

	prior, err := s.rounds.ListByBattle(ctx, battle.ID)
	if err != nil {
		return fmt.Errorf("failed to list prior rounds: %w", err)
	}
	exclude := make([]string, 0, len(prior))
	for _, r := range prior {
		exclude = append(exclude, r.ProblemID)
	}

	problem, err := s.problems.PickByRating(ctx, target, exclude)
	if err != nil {
		return fmt.Errorf("failed to pick problem: %w", err)
	}
	if problem == nil {
		return fmt.Errorf("no problem available for rating %d", target)
	}

	round, err := s.rounds.Create(ctx, battle.ID, roundNumber, problem.ID, problem.Rating)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}

	recipients := s.audience(ctx, battle)
	s.notifier.SendToUsers(recipients, models.RoundStartedEvent{
		BattleID:      battle.ID,
		RoundID:       round.ID,
		RoundNumber:   round.RoundNumber,
		ProblemID:     problem.ID,
		ProblemTitle:  problem.Title,
		ProblemRating: problem.Rating,
	})

	s.logger.Info("Round started",
		zap.String("battleId", battle.ID),
		zap.Int("roundNumber", roundNumber),
		zap.String("problemId", problem.ID))

	return nil
}

// SubmitSolution validates and persists a submission, then hands it to the
// judging pipeline. The call returns as soon as the submission is accepted;
// the verdict arrives through OnVerdict.
func (s *BattleService) SubmitSolution(ctx context.Context, battleID, roundID, userID, code, language string) (*models.BattleSubmission, error) {
	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load battle: %w", err)
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	if !battle.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if battle.Status != models.BattleStatusInProgress {
		return nil, ErrBattleNotActive
	}

	round, err := s.rounds.FindByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load round: %w", err)
	}
	if round == nil || round.BattleID != battleID {
		return nil, ErrRoundNotFound
	}
	if !round.Open() {
		return nil, ErrRoundClosed
	}

	if len(strings.TrimSpace(code)) < minCodeLength {
		return nil, ErrCodeTooShort
	}

	// Per-user per-battle throttle against the persisted latest submission.
	last, err := s.submissions.LatestForUser(ctx, battleID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check last submission: %w", err)
	}
	if last != nil {
		if since := time.Since(last.SubmittedAt); since < s.throttle {
			return nil, &ThrottledError{Wait: s.throttle - since}
		}
	}

	sub, err := s.submissions.Create(ctx, battleID, roundID, userID, round.ProblemID, language, code)
	if err != nil {
		return nil, fmt.Errorf("failed to persist submission: %w", err)
	}

	if err := s.judge.Submit(&judge.ExecuteRequest{
		SubmissionID:  sub.ID,
		ProblemID:     round.ProblemID,
		SourceCode:    code,
		Language:      language,
		TimeLimitSec:  s.judgeTimeLimitSec,
		MemoryLimitMB: s.judgeMemoryMB,
	}); err != nil {
		// Dispatch failure is a judging error: retryable, never a loss.
		s.logger.Error("Failed to dispatch submission for judging",
			zap.String("submissionId", sub.ID),
			zap.Error(err))
		if uerr := s.submissions.UpdateVerdict(ctx, sub.ID, models.SubmissionStatusInternalError, nil, nil, nil, nil, nil); uerr == nil {
			sub.Status = models.SubmissionStatusInternalError
		}
		s.notifier.SendToUser(userID, models.SubmissionJudgedEvent{
			BattleID:     battleID,
			RoundID:      roundID,
			SubmissionID: sub.ID,
			Status:       models.SubmissionStatusInternalError,
			Message:      "judging is temporarily unavailable, please retry",
		})
		return sub, nil
	}

	// Best effort; the verdict write is what matters.
	if err := s.submissions.UpdateStatus(ctx, sub.ID, models.SubmissionStatusRunning); err == nil {
		sub.Status = models.SubmissionStatusRunning
	}

	s.logger.Info("Submission accepted",
		zap.String("battleId", battleID),
		zap.String("submissionId", sub.ID),
		zap.String("userId", userID),
		zap.String("language", language))

	return sub, nil
}

// OnVerdict is the judging pipeline's single entry point back into the
// lifecycle controller. It records the verdict, notifies the submitter, and
// runs round-completion detection.
func (s *BattleService) OnVerdict(submissionID string, resp *judge.ExecuteResponse, execErr error) {
	ctx := context.Background()

	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil || sub == nil {
		s.logger.Error("Verdict for unknown submission",
			zap.String("submissionId", submissionID),
			zap.Error(err))
		return
	}

	status := models.SubmissionStatusInternalError
	var execMs, memKb *int
	var stdout, stderr, compileOut *string
	message := "judging failed, please retry"

	if execErr == nil && resp != nil {
		if resp.Success {
			status = models.SubmissionStatusSolved
			message = "solved"
		} else {
			status = models.SubmissionStatusFailed
			message = resp.Status
		}
		execMs = &resp.ExecutionTimeMs
		memKb = &resp.MemoryUsedKb
		stdout = strPtr(resp.Stdout)
		stderr = strPtr(resp.Stderr)
		compileOut = strPtr(resp.CompileOutput)
	}

	if err := s.submissions.UpdateVerdict(ctx, submissionID, status, execMs, memKb, stdout, stderr, compileOut); err != nil {
		s.logger.Error("Failed to record verdict",
			zap.String("submissionId", submissionID),
			zap.Error(err))
		return
	}

	event := models.SubmissionJudgedEvent{
		BattleID:     sub.BattleID,
		RoundID:      sub.RoundID,
		SubmissionID: submissionID,
		Status:       status,
		Message:      message,
	}
	if execMs != nil {
		event.ExecutionTimeMs = *execMs
	}
	s.notifier.SendToUser(sub.UserID, event)

	// Internal errors never decide a round.
	if !status.Counted() {
		return
	}

	s.evaluateRound(ctx, sub.BattleID, sub.RoundID)
}

// evaluateRound applies the completion rules against the persisted submission
// set. Both participants' verdicts may land almost simultaneously; the
// guarded round close makes the evaluations converge on one winner.
func (s *BattleService) evaluateRound(ctx context.Context, battleID, roundID string) {
	round, err := s.rounds.FindByID(ctx, roundID)
	if err != nil || round == nil {
		s.logger.Error("Failed to load round for evaluation",
			zap.String("roundId", roundID), zap.Error(err))
		return
	}
	if !round.Open() {
		return
	}

	subs, err := s.submissions.ListByRound(ctx, roundID)
	if err != nil {
		s.logger.Error("Failed to list round submissions",
			zap.String("roundId", roundID), zap.Error(err))
		return
	}

	participants, err := s.battles.Participants(ctx, battleID)
	if err != nil {
		s.logger.Error("Failed to load participants",
			zap.String("battleId", battleID), zap.Error(err))
		return
	}

	winner := decideRoundWinner(subs, participants)
	if winner == "" {
		return
	}

	closed, err := s.rounds.Close(ctx, roundID, winner)
	if err != nil {
		s.logger.Error("Failed to close round",
			zap.String("roundId", roundID), zap.Error(err))
		return
	}
	if !closed {
		// A concurrent evaluation won the close.
		return
	}

	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil || battle == nil {
		return
	}

	s.notifier.SendToUsers(s.audience(ctx, battle), models.RoundEndedEvent{
		BattleID:     battleID,
		RoundID:      roundID,
		RoundNumber:  round.RoundNumber,
		WinnerUserID: winner,
	})

	s.logger.Info("Round ended",
		zap.String("battleId", battleID),
		zap.Int("roundNumber", round.RoundNumber),
		zap.String("winner", winner))

	s.afterRoundClosed(ctx, battle, round, winner)
}

// decideRoundWinner implements the ordered completion rules:
//  1. the earliest solved submission wins outright;
//  2. once every participant has a counted attempt, the earliest attempt wins
//     even when all attempts failed;
//  3. otherwise the round stays open ("" winner).
func decideRoundWinner(subs []*models.BattleSubmission, participants []*models.BattleParticipant) string {
	// subs arrive ordered by submission time ascending.
	for _, sub := range subs {
		if sub.Status == models.SubmissionStatusSolved {
			return sub.UserID
		}
	}

	attempted := make(map[string]bool)
	for _, sub := range subs {
		if sub.Status.Counted() {
			attempted[sub.UserID] = true
		}
	}
	for _, p := range participants {
		if !attempted[p.UserID] {
			return ""
		}
	}

	for _, sub := range subs {
		if sub.Status.Counted() {
			return sub.UserID
		}
	}
	return ""
}

// afterRoundClosed either ends the battle when someone reached the format's
// win threshold or opens the next round.
func (s *BattleService) afterRoundClosed(ctx context.Context, battle *models.Battle, round *models.BattleRound, winner string) {
	wins, err := s.rounds.CountWins(ctx, battle.ID)
	if err != nil {
		s.logger.Error("Failed to count round wins",
			zap.String("battleId", battle.ID), zap.Error(err))
		return
	}

	if wins[winner] >= battle.Format.WinsNeeded() {
		s.endBattle(ctx, battle, winner)
		return
	}

	if err := s.createRound(ctx, battle, round.RoundNumber+1); err != nil {
		s.logger.Error("Failed to open next round",
			zap.String("battleId", battle.ID), zap.Error(err))
	}
}

// endBattle completes the battle and settles ratings. The guarded completion
// keeps concurrent verdict evaluations from double-settling.
func (s *BattleService) endBattle(ctx context.Context, battle *models.Battle, winner string) {
	completed, err := s.battles.Complete(ctx, battle.ID, winner)
	if err != nil {
		s.logger.Error("Failed to complete battle",
			zap.String("battleId", battle.ID), zap.Error(err))
		return
	}
	if !completed {
		return
	}

	s.invalidateSnapshot(ctx, battle.ID)

	deltas, err := s.SettleRatings(ctx, battle.ID)
	if err != nil {
		// The battle is completed; settlement can be re-run idempotently.
		s.logger.Error("Rating settlement failed",
			zap.String("battleId", battle.ID), zap.Error(err))
	}

	participants, perr := s.battles.Participants(ctx, battle.ID)
	if perr == nil {
		for _, p := range participants {
			s.notifier.SendToUser(p.UserID, models.BattleEndedEvent{
				BattleID:     battle.ID,
				WinnerUserID: winner,
				RatingChange: deltas[p.UserID],
				NewRating:    p.RatingBefore + deltas[p.UserID],
			})
		}
	}
	if spectators, serr := s.spectators.ListUserIDs(ctx, battle.ID); serr == nil && len(spectators) > 0 {
		s.notifier.SendToUsers(spectators, models.BattleEndedEvent{
			BattleID:     battle.ID,
			WinnerUserID: winner,
		})
	}

	s.logger.Info("Battle ended",
		zap.String("battleId", battle.ID),
		zap.String("winner", winner))
}

// SettleRatings applies the zero-sum rating update for a completed battle.
// Idempotent keyed on battle ID: each participant's delta is written behind a
// null guard, so re-running after a crash between completion and settlement
// finishes the remaining half and then becomes a no-op.
func (s *BattleService) SettleRatings(ctx context.Context, battleID string) (map[string]int, error) {
	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load battle: %w", err)
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	if battle.Status != models.BattleStatusCompleted || battle.WinnerUserID == nil {
		return nil, fmt.Errorf("battle %s is not completed with a winner", battleID)
	}

	participants, err := s.battles.Participants(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	var winner, loser *models.BattleParticipant
	for _, p := range participants {
		if p.UserID == *battle.WinnerUserID {
			winner = p
		} else {
			loser = p
		}
	}
	if winner == nil || loser == nil {
		return nil, fmt.Errorf("battle %s has inconsistent participants", battleID)
	}

	winnerDelta, loserDelta := s.ratingEngine.Deltas(winner.RatingBefore, loser.RatingBefore)
	deltas := map[string]int{winner.UserID: winnerDelta, loser.UserID: loserDelta}

	if err := s.settleParticipant(ctx, battleID, winner.UserID, winnerDelta, true); err != nil {
		return deltas, err
	}
	if err := s.settleParticipant(ctx, battleID, loser.UserID, loserDelta, false); err != nil {
		return deltas, err
	}

	return deltas, nil
}

func (s *BattleService) settleParticipant(ctx context.Context, battleID, userID string, delta int, won bool) error {
	applied, err := s.battles.SetRatingChange(ctx, battleID, userID, delta)
	if err != nil {
		return fmt.Errorf("failed to record rating change: %w", err)
	}
	if !applied {
		// Already settled for this participant.
		return nil
	}
	if err := s.ratings.ApplyDelta(ctx, userID, delta, won); err != nil {
		return fmt.Errorf("failed to apply rating delta: %w", err)
	}
	return nil
}

// audience is everyone who should hear about battle state: both participants
// plus current spectators.
func (s *BattleService) audience(ctx context.Context, battle *models.Battle) []string {
	recipients := battle.UserIDs()
	if spectators, err := s.spectators.ListUserIDs(ctx, battle.ID); err == nil {
		recipients = append(recipients, spectators...)
	}
	return recipients
}

func (s *BattleService) cacheSnapshot(ctx context.Context, battle *models.Battle) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, battle); err != nil {
		s.logger.Warn("Failed to cache battle snapshot",
			zap.String("battleId", battle.ID), zap.Error(err))
	}
}

func (s *BattleService) invalidateSnapshot(ctx context.Context, battleID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, battleID); err != nil {
		s.logger.Warn("Failed to invalidate battle snapshot",
			zap.String("battleId", battleID), zap.Error(err))
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
