package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-arena/code-arena-backend/internal/models"
)

func newMatchmakingFixture() (*MatchmakingService, *fakeQueue, *fakeBattleStore, *fakeRatingStore, *fakeNotifier) {
	queue := newFakeQueue()
	battles := newFakeBattleStore()
	ratings := newFakeRatingStore()
	notifier := newFakeNotifier()
	creator := &fakeCreator{battles: battles}

	svc := NewMatchmakingService(queue, battles, ratings, creator, notifier, 5*time.Minute, 30*time.Minute)
	return svc, queue, battles, ratings, notifier
}

func TestJoinQueue_EmptyPoolQueuesUser(t *testing.T) {
	svc, queue, _, _, notifier := newMatchmakingFixture()
	ctx := context.Background()

	result, err := svc.JoinQueue(ctx, "alice", models.FormatBestOf3)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Equal(t, 1, result.Position)
	assert.Equal(t, 1, result.PoolSize)

	size, _ := queue.Size(ctx)
	assert.Equal(t, int64(1), size)

	joined := notifier.lastOfType("alice", "queue_joined")
	require.NotNil(t, joined)
	assert.Equal(t, 1, joined.(models.QueueJoinedEvent).Position)
}

func TestJoinQueue_InvalidFormat(t *testing.T) {
	svc, _, _, _, _ := newMatchmakingFixture()

	_, err := svc.JoinQueue(context.Background(), "alice", "best_of_7")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestJoinQueue_DuplicateJoinRejected(t *testing.T) {
	svc, _, _, _, _ := newMatchmakingFixture()
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "alice", models.FormatBestOf1)
	require.NoError(t, err)

	_, err = svc.JoinQueue(ctx, "alice", models.FormatBestOf1)
	assert.ErrorIs(t, err, ErrAlreadyInQueue)
}

func TestJoinQueue_ActiveBattleRejected(t *testing.T) {
	svc, _, battles, _, _ := newMatchmakingFixture()
	ctx := context.Background()

	_, err := battles.CreateWithParticipants(ctx, "alice", "bob", 1200, 1200, models.FormatBestOf1, true)
	require.NoError(t, err)

	_, err = svc.JoinQueue(ctx, "alice", models.FormatBestOf1)
	assert.ErrorIs(t, err, ErrActiveBattle)
}

func TestJoinQueue_CompatiblePairMatches(t *testing.T) {
	svc, queue, battles, ratings, notifier := newMatchmakingFixture()
	ctx := context.Background()

	ratings.seed("alice", 1200)
	ratings.seed("bob", 1250)

	_, err := svc.JoinQueue(ctx, "bob", models.FormatBestOf3)
	require.NoError(t, err)

	result, err := svc.JoinQueue(ctx, "alice", models.FormatBestOf3)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.NotEmpty(t, result.BattleID)

	// Both entries left the queue atomically.
	size, _ := queue.Size(ctx)
	assert.Equal(t, int64(0), size)

	battle, err := battles.FindByID(ctx, result.BattleID)
	require.NoError(t, err)
	require.NotNil(t, battle)
	assert.Equal(t, "alice", battle.HostUserID)
	assert.Equal(t, "bob", battle.GuestUserID)
	assert.Equal(t, models.FormatBestOf3, battle.Format)

	aliceMatched := notifier.lastOfType("alice", "battle_matched")
	require.NotNil(t, aliceMatched)
	assert.True(t, aliceMatched.(models.BattleMatchedEvent).IsHost)

	bobMatched := notifier.lastOfType("bob", "battle_matched")
	require.NotNil(t, bobMatched)
	assert.False(t, bobMatched.(models.BattleMatchedEvent).IsHost)
	assert.Equal(t, "alice", bobMatched.(models.BattleMatchedEvent).OpponentID)
}

func TestJoinQueue_FarCandidateRejectedWithoutFallback(t *testing.T) {
	svc, queue, _, ratings, _ := newMatchmakingFixture()
	ctx := context.Background()

	// The only candidate sits 400 points away: outside the override gap and
	// outside the fallback window, so the joiner stays queued.
	ratings.seed("strong", 1600)
	ratings.seed("joiner", 1200)

	_, err := svc.JoinQueue(ctx, "strong", models.FormatBestOf1)
	require.NoError(t, err)

	result, err := svc.JoinQueue(ctx, "joiner", models.FormatBestOf1)
	require.NoError(t, err)
	assert.False(t, result.Matched)

	size, _ := queue.Size(ctx)
	assert.Equal(t, int64(2), size)
}

func TestJoinQueue_FallbackWindowOverridesScore(t *testing.T) {
	svc, _, battles, ratings, _ := newMatchmakingFixture()
	ctx := context.Background()

	// "near" is a recent opponent, so the rematch penalty makes distant
	// "far" the top-scored pick. Its 351-point gap triggers the override,
	// and the plain rating window lands on "near" after all.
	ratings.seed("near", 1250)
	ratings.seed("far", 1551)
	ratings.seed("joiner", 1200)
	battles.recent["joiner"] = []string{"near"}

	_, err := svc.JoinQueue(ctx, "near", models.FormatBestOf1)
	require.NoError(t, err)
	_, err = svc.JoinQueue(ctx, "far", models.FormatBestOf1)
	require.NoError(t, err)

	result, err := svc.JoinQueue(ctx, "joiner", models.FormatBestOf1)
	require.NoError(t, err)
	require.True(t, result.Matched)

	battle, err := battles.FindByID(ctx, result.BattleID)
	require.NoError(t, err)
	assert.Equal(t, "near", battle.GuestUserID)
}

func TestJoinQueue_RequeuesBothOnCreationFailure(t *testing.T) {
	queue := newFakeQueue()
	battles := newFakeBattleStore()
	ratings := newFakeRatingStore()
	notifier := newFakeNotifier()
	creator := &fakeCreator{battles: battles, failure: errors.New("db down")}

	svc := NewMatchmakingService(queue, battles, ratings, creator, notifier, 5*time.Minute, 30*time.Minute)
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "bob", models.FormatBestOf1)
	require.NoError(t, err)

	result, err := svc.JoinQueue(ctx, "alice", models.FormatBestOf1)
	require.NoError(t, err)
	assert.False(t, result.Matched)

	// Both users are back in the pool after the failed creation.
	size, _ := queue.Size(ctx)
	assert.Equal(t, int64(2), size)
}

func TestJoinQueue_ConcurrentJoinsNeverDoubleMatch(t *testing.T) {
	svc, _, battles, _, _ := newMatchmakingFixture()
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "waiting", models.FormatBestOf1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, userID := range []string{"racer1", "racer2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = svc.JoinQueue(ctx, id, models.FormatBestOf1)
		}(userID)
	}
	wg.Wait()

	// The waiting user must end up in exactly one battle.
	count := 0
	for _, b := range battles.battles {
		if b.HasParticipant("waiting") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLeaveQueue_Idempotent(t *testing.T) {
	svc, _, _, _, notifier := newMatchmakingFixture()
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, "alice", models.FormatBestOf1)
	require.NoError(t, err)

	left, err := svc.LeaveQueue(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, left)
	assert.NotNil(t, notifier.lastOfType("alice", "queue_left"))

	left, err = svc.LeaveQueue(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, left)
}

func TestSweep_EvictsStaleEntries(t *testing.T) {
	svc, queue, _, _, notifier := newMatchmakingFixture()
	ctx := context.Background()

	stale := &models.QueueEntry{
		UserID:             "sleeper",
		Rating:             1200,
		JoinedAt:           time.Now().Add(-31 * time.Minute),
		Format:             models.FormatBestOf1,
		PreferredTimeOfDay: -1,
		PreferredWeekday:   -1,
	}
	added, err := queue.Add(ctx, stale)
	require.NoError(t, err)
	require.True(t, added)

	fresh := &models.QueueEntry{
		UserID:             "awake",
		Rating:             2400,
		JoinedAt:           time.Now(),
		Format:             models.FormatBestOf1,
		PreferredTimeOfDay: -1,
		PreferredWeekday:   -1,
	}
	added, err = queue.Add(ctx, fresh)
	require.NoError(t, err)
	require.True(t, added)

	svc.Sweep(ctx)

	size, _ := queue.Size(ctx)
	assert.Equal(t, int64(1), size)

	timeout := notifier.lastOfType("sleeper", "queue_timeout")
	require.NotNil(t, timeout)
	assert.GreaterOrEqual(t, timeout.(models.QueueTimeoutEvent).WaitedSeconds, 30*60)

	assert.Nil(t, notifier.lastOfType("awake", "queue_timeout"))
}

func TestGetQueueStatus(t *testing.T) {
	svc, _, _, _, _ := newMatchmakingFixture()
	ctx := context.Background()

	status, err := svc.GetQueueStatus(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, status.Queued)

	_, err = svc.JoinQueue(ctx, "alice", models.FormatBestOf1)
	require.NoError(t, err)

	status, err = svc.GetQueueStatus(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, status.Queued)
	assert.Equal(t, 1, status.Position)
	assert.Equal(t, 1, status.PoolSize)
}
