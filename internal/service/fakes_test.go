package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/code-arena/code-arena-backend/internal/models"
	"github.com/code-arena/code-arena-backend/pkg/judge"
)

// In-memory fakes for the store interfaces. They mirror the guard semantics
// of the SQL repositories (conditional transitions, null-guarded settlement)
// so service tests exercise the same race-handling paths.

type fakeQueue struct {
	mu      sync.Mutex
	entries map[string]*models.QueueEntry
	order   []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{entries: make(map[string]*models.QueueEntry)}
}

func (q *fakeQueue) Add(ctx context.Context, entry *models.QueueEntry) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.entries[entry.UserID]; exists {
		return false, nil
	}
	q.entries[entry.UserID] = entry
	q.order = append(q.order, entry.UserID)
	return true, nil
}

func (q *fakeQueue) Get(ctx context.Context, userID string) (*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries[userID], nil
}

func (q *fakeQueue) Remove(ctx context.Context, userID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(userID), nil
}

func (q *fakeQueue) removeLocked(userID string) bool {
	if _, exists := q.entries[userID]; !exists {
		return false
	}
	delete(q.entries, userID)
	for i, id := range q.order {
		if id == userID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

func (q *fakeQueue) RemovePair(ctx context.Context, userA, userB string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[userA]; !ok {
		return false, nil
	}
	if _, ok := q.entries[userB]; !ok {
		return false, nil
	}
	q.removeLocked(userA)
	q.removeLocked(userB)
	return true, nil
}

func (q *fakeQueue) Entries(ctx context.Context) ([]*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.QueueEntry, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id])
	}
	return out, nil
}

func (q *fakeQueue) Position(ctx context.Context, userID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.order {
		if id == userID {
			return i + 1, nil
		}
	}
	return 0, errors.New("not queued")
}

func (q *fakeQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.order)), nil
}

func (q *fakeQueue) StaleEntries(ctx context.Context, cutoff time.Time) ([]*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.QueueEntry
	for _, id := range q.order {
		if e := q.entries[id]; e.JoinedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeBattleStore struct {
	mu           sync.Mutex
	battles      map[string]*models.Battle
	participants map[string][]*models.BattleParticipant
	recent       map[string][]string
}

func newFakeBattleStore() *fakeBattleStore {
	return &fakeBattleStore{
		battles:      make(map[string]*models.Battle),
		participants: make(map[string][]*models.BattleParticipant),
		recent:       make(map[string][]string),
	}
}

func (s *fakeBattleStore) CreateWithParticipants(ctx context.Context, hostUserID, guestUserID string, hostRating, guestRating int, format models.BattleFormat, isPublic bool) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	battle := &models.Battle{
		ID:          uuid.New().String(),
		HostUserID:  hostUserID,
		GuestUserID: guestUserID,
		Status:      models.BattleStatusWaiting,
		Format:      format,
		IsPublic:    isPublic,
		CreatedAt:   time.Now(),
	}
	s.battles[battle.ID] = battle
	s.participants[battle.ID] = []*models.BattleParticipant{
		{ID: uuid.New().String(), BattleID: battle.ID, UserID: hostUserID, IsHost: true, RatingBefore: hostRating},
		{ID: uuid.New().String(), BattleID: battle.ID, UserID: guestUserID, RatingBefore: guestRating},
	}
	return battle, nil
}

func (s *fakeBattleStore) FindByID(ctx context.Context, id string) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (s *fakeBattleStore) MarkInProgress(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok || b.Status != models.BattleStatusWaiting {
		return false, nil
	}
	now := time.Now()
	b.Status = models.BattleStatusInProgress
	b.StartedAt = &now
	return true, nil
}

func (s *fakeBattleStore) MarkCancelled(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok || b.Status != models.BattleStatusWaiting {
		return false, nil
	}
	now := time.Now()
	b.Status = models.BattleStatusCancelled
	b.EndedAt = &now
	return true, nil
}

func (s *fakeBattleStore) Complete(ctx context.Context, id, winnerUserID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok || b.Status != models.BattleStatusInProgress {
		return false, nil
	}
	now := time.Now()
	b.Status = models.BattleStatusCompleted
	b.WinnerUserID = &winnerUserID
	b.EndedAt = &now
	return true, nil
}

func (s *fakeBattleStore) SetVisibility(ctx context.Context, id string, isPublic bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return errors.New("battle not found")
	}
	b.IsPublic = isPublic
	return nil
}

func (s *fakeBattleStore) HasActiveBattle(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.battles {
		if b.HasParticipant(userID) && !b.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeBattleStore) Participants(ctx context.Context, battleID string) ([]*models.BattleParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[battleID], nil
}

func (s *fakeBattleStore) SetRatingChange(ctx context.Context, battleID, userID string, change int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants[battleID] {
		if p.UserID == userID {
			if p.RatingChange != nil {
				return false, nil
			}
			p.RatingChange = &change
			return true, nil
		}
	}
	return false, errors.New("participant not found")
}

func (s *fakeBattleStore) RecentOpponents(ctx context.Context, userID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opponents := s.recent[userID]
	if len(opponents) > limit {
		opponents = opponents[:limit]
	}
	return opponents, nil
}

func (s *fakeBattleStore) ParticipationBuckets(ctx context.Context, userID string) ([models.TimeOfDayBuckets]int, [models.WeekdayBuckets]int, error) {
	return [models.TimeOfDayBuckets]int{}, [models.WeekdayBuckets]int{}, nil
}

type fakeRoundStore struct {
	mu     sync.Mutex
	rounds map[string]*models.BattleRound
}

func newFakeRoundStore() *fakeRoundStore {
	return &fakeRoundStore{rounds: make(map[string]*models.BattleRound)}
}

func (s *fakeRoundStore) Create(ctx context.Context, battleID string, roundNumber int, problemID string, rating int) (*models.BattleRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round := &models.BattleRound{
		ID:          uuid.New().String(),
		BattleID:    battleID,
		RoundNumber: roundNumber,
		ProblemID:   problemID,
		Rating:      rating,
		StartedAt:   time.Now(),
	}
	s.rounds[round.ID] = round
	return round, nil
}

func (s *fakeRoundStore) FindByID(ctx context.Context, id string) (*models.BattleRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (s *fakeRoundStore) OpenRound(ctx context.Context, battleID string) (*models.BattleRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if r.BattleID == battleID && r.Open() {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeRoundStore) Close(ctx context.Context, roundID, winnerUserID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok || !r.Open() {
		return false, nil
	}
	now := time.Now()
	r.WinnerUserID = &winnerUserID
	r.EndedAt = &now
	return true, nil
}

func (s *fakeRoundStore) ListByBattle(ctx context.Context, battleID string) ([]*models.BattleRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BattleRound
	for _, r := range s.rounds {
		if r.BattleID == battleID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (s *fakeRoundStore) CountWins(ctx context.Context, battleID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wins := make(map[string]int)
	for _, r := range s.rounds {
		if r.BattleID == battleID && r.WinnerUserID != nil {
			wins[*r.WinnerUserID]++
		}
	}
	return wins, nil
}

// fakeSubmissionStore keeps insertion order, which is submission time order.
type fakeSubmissionStore struct {
	mu    sync.Mutex
	subs  map[string]*models.BattleSubmission
	order []string
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{subs: make(map[string]*models.BattleSubmission)}
}

func (s *fakeSubmissionStore) Create(ctx context.Context, battleID, roundID, userID, problemID, language, codeText string) (*models.BattleSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &models.BattleSubmission{
		ID:          uuid.New().String(),
		BattleID:    battleID,
		RoundID:     roundID,
		UserID:      userID,
		ProblemID:   problemID,
		Language:    language,
		CodeText:    codeText,
		Status:      models.SubmissionStatusPending,
		SubmittedAt: time.Now(),
	}
	s.subs[sub.ID] = sub
	s.order = append(s.order, sub.ID)
	return sub, nil
}

func (s *fakeSubmissionStore) FindByID(ctx context.Context, id string) (*models.BattleSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, nil
	}
	c := *sub
	return &c, nil
}

func (s *fakeSubmissionStore) UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		sub.Status = status
	}
	return nil
}

func (s *fakeSubmissionStore) UpdateVerdict(ctx context.Context, id string, status models.SubmissionStatus, executionTimeMs, memoryKb *int, stdout, stderr, compileOutput *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return errors.New("submission not found")
	}
	sub.Status = status
	sub.ExecutionTimeMs = executionTimeMs
	sub.MemoryKb = memoryKb
	sub.Stdout = stdout
	sub.Stderr = stderr
	sub.CompileOutput = compileOutput
	return nil
}

func (s *fakeSubmissionStore) LatestForUser(ctx context.Context, battleID, userID string) (*models.BattleSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		sub := s.subs[s.order[i]]
		if sub.BattleID == battleID && sub.UserID == userID {
			c := *sub
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeSubmissionStore) ListByRound(ctx context.Context, roundID string) ([]*models.BattleSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BattleSubmission
	for _, id := range s.order {
		if sub := s.subs[id]; sub.RoundID == roundID {
			c := *sub
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeSubmissionStore) ListByBattle(ctx context.Context, battleID string) ([]*models.BattleSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BattleSubmission
	for _, id := range s.order {
		if sub := s.subs[id]; sub.BattleID == battleID {
			c := *sub
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeRatingStore struct {
	mu      sync.Mutex
	ratings map[string]*models.Rating
}

func newFakeRatingStore() *fakeRatingStore {
	return &fakeRatingStore{ratings: make(map[string]*models.Rating)}
}

func (s *fakeRatingStore) seed(userID string, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[userID] = &models.Rating{UserID: userID, Rating: rating}
}

func (s *fakeRatingStore) GetOrCreate(ctx context.Context, userID string) (*models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[userID]; ok {
		c := *r
		return &c, nil
	}
	r := &models.Rating{UserID: userID, Rating: models.DefaultRating}
	s.ratings[userID] = r
	c := *r
	return &c, nil
}

func (s *fakeRatingStore) ApplyDelta(ctx context.Context, userID string, delta int, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[userID]
	if !ok {
		return fmt.Errorf("no rating for %s", userID)
	}
	r.Rating += delta
	r.BattlesCount++
	if won {
		r.Wins++
	} else {
		r.Losses++
	}
	return nil
}

type fakeSpectatorStore struct {
	mu       sync.Mutex
	watchers map[string][]string // battleID -> userIDs
}

func newFakeSpectatorStore() *fakeSpectatorStore {
	return &fakeSpectatorStore{watchers: make(map[string][]string)}
}

func (s *fakeSpectatorStore) Add(ctx context.Context, battleID, userID string) (*models.Spectator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[battleID] = append(s.watchers[battleID], userID)
	return &models.Spectator{BattleID: battleID, UserID: userID, JoinedAt: time.Now()}, nil
}

func (s *fakeSpectatorStore) Exists(ctx context.Context, battleID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.watchers[battleID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeSpectatorStore) Remove(ctx context.Context, battleID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.watchers[battleID]
	for i, id := range ids {
		if id == userID {
			s.watchers[battleID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeSpectatorStore) ListUserIDs(ctx context.Context, battleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.watchers[battleID]...), nil
}

// fakeNotifier records every event per recipient.
type fakeNotifier struct {
	mu     sync.Mutex
	events map[string][]models.Event
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(map[string][]models.Event)}
}

func (n *fakeNotifier) SendToUser(userID string, event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[userID] = append(n.events[userID], event)
}

func (n *fakeNotifier) SendToUsers(userIDs []string, event models.Event) {
	for _, id := range userIDs {
		n.SendToUser(id, event)
	}
}

func (n *fakeNotifier) eventsFor(userID string) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Event(nil), n.events[userID]...)
}

func (n *fakeNotifier) lastOfType(userID, eventType string) models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events[userID]) - 1; i >= 0; i-- {
		if n.events[userID][i].EventType() == eventType {
			return n.events[userID][i]
		}
	}
	return nil
}

// fakeJudge captures dispatch requests; Submit fails when failNext is set.
type fakeJudge struct {
	mu       sync.Mutex
	requests []*judge.ExecuteRequest
	failNext bool
}

func (j *fakeJudge) Submit(req *judge.ExecuteRequest) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failNext {
		j.failNext = false
		return errors.New("judge unavailable")
	}
	j.requests = append(j.requests, req)
	return nil
}

func (j *fakeJudge) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.requests)
}

// fakeProblems serves problems round-robin, honoring the exclusion list.
type fakeProblems struct {
	mu       sync.Mutex
	problems []*models.Problem
}

func (p *fakeProblems) PickByRating(ctx context.Context, targetRating int, excludeIDs []string) (*models.Problem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	for _, prob := range p.problems {
		if !excluded[prob.ID] {
			return prob, nil
		}
	}
	return nil, nil
}

// fakeCreator satisfies BattleCreator for matchmaking tests that do not need
// the full lifecycle controller.
type fakeCreator struct {
	battles *fakeBattleStore
	failure error
}

func (c *fakeCreator) CreateBattle(ctx context.Context, hostUserID, guestUserID string, format models.BattleFormat) (*models.Battle, error) {
	if c.failure != nil {
		return nil, c.failure
	}
	return c.battles.CreateWithParticipants(ctx, hostUserID, guestUserID, models.DefaultRating, models.DefaultRating, format, true)
}
