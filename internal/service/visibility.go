package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/code-arena/code-arena-backend/internal/models"
)

// BattleView is the read model for a single battle. Submissions are redacted
// for non-participants.
type BattleView struct {
	Battle       *models.Battle              `json:"battle"`
	Participants []*models.BattleParticipant `json:"participants"`
	Rounds       []*models.BattleRound       `json:"rounds"`
	Submissions  []*models.BattleSubmission  `json:"submissions"`
}

// GetBattle loads the full battle view for a requesting user. Private battles
// are only visible to their participants; everyone else sees submissions with
// code and program output stripped.
func (s *BattleService) GetBattle(ctx context.Context, battleID, userID string) (*BattleView, error) {
	battle, err := s.loadBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}

	participant := battle.HasParticipant(userID)
	if !battle.IsPublic && !participant {
		return nil, ErrBattlePrivate
	}

	participants, err := s.battles.Participants(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	rounds, err := s.rounds.ListByBattle(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rounds: %w", err)
	}
	subs, err := s.submissions.ListByBattle(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}

	if !participant {
		redacted := make([]*models.BattleSubmission, len(subs))
		for i, sub := range subs {
			redacted[i] = sub.Redacted()
		}
		subs = redacted
	}

	return &BattleView{
		Battle:       battle,
		Participants: participants,
		Rounds:       rounds,
		Submissions:  subs,
	}, nil
}

// loadBattle goes through the snapshot cache when one is wired, falling back
// to the database on a miss.
func (s *BattleService) loadBattle(ctx context.Context, battleID string) (*models.Battle, error) {
	if s.cache != nil {
		if battle, err := s.cache.Get(ctx, battleID); err == nil && battle != nil {
			return battle, nil
		}
	}

	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load battle: %w", err)
	}
	if battle != nil {
		s.cacheSnapshot(ctx, battle)
	}
	return battle, nil
}

// AddSpectator registers a user as a spectator of a public battle. Participants
// cannot spectate their own battle; waiting and cancelled battles are not
// watchable.
func (s *BattleService) AddSpectator(ctx context.Context, battleID, userID string) (*models.Spectator, error) {
	battle, err := s.loadBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	if !battle.IsPublic {
		return nil, ErrBattlePrivate
	}
	if battle.Status != models.BattleStatusInProgress && battle.Status != models.BattleStatusCompleted {
		return nil, ErrBattleNotWatchable
	}
	if battle.HasParticipant(userID) {
		return nil, ErrParticipantSpectate
	}

	exists, err := s.spectators.Exists(ctx, battleID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check spectator: %w", err)
	}
	if exists {
		return nil, ErrAlreadySpectating
	}

	spectator, err := s.spectators.Add(ctx, battleID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to add spectator: %w", err)
	}

	s.logger.Info("Spectator joined",
		zap.String("battleId", battleID),
		zap.String("userId", userID))

	return spectator, nil
}

// RemoveSpectator is idempotent; leaving a battle you never watched succeeds.
func (s *BattleService) RemoveSpectator(ctx context.Context, battleID, userID string) error {
	if err := s.spectators.Remove(ctx, battleID, userID); err != nil {
		return fmt.Errorf("failed to remove spectator: %w", err)
	}
	return nil
}

// ListSpectators returns the user IDs currently watching the battle.
func (s *BattleService) ListSpectators(ctx context.Context, battleID string) ([]string, error) {
	battle, err := s.loadBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	return s.spectators.ListUserIDs(ctx, battleID)
}

// SetVisibility lets the host flip the battle between public and private.
// Going private does not eject existing spectators; they stop receiving the
// detailed view on their next read.
func (s *BattleService) SetVisibility(ctx context.Context, battleID, userID string, isPublic bool) error {
	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return fmt.Errorf("failed to load battle: %w", err)
	}
	if battle == nil {
		return ErrBattleNotFound
	}
	if battle.HostUserID != userID {
		return ErrNotHost
	}

	if err := s.battles.SetVisibility(ctx, battleID, isPublic); err != nil {
		return fmt.Errorf("failed to set visibility: %w", err)
	}

	battle.IsPublic = isPublic
	s.cacheSnapshot(ctx, battle)

	s.notifier.SendToUsers(s.audience(ctx, battle), models.VisibilityChangedEvent{
		BattleID: battleID,
		IsPublic: isPublic,
	})

	return nil
}
