package service

import (
	"context"
	"testing"
	"time"

	"codearena/internal/arena/model"
	"codearena/internal/arena/repository"
	"codearena/internal/common/cache"
	"codearena/internal/rating"

	"github.com/alicebob/miniredis/v2"
)

type stubRatingStore struct {
	ratings map[int64]map[rating.Dimension]rating.Rating
}

func (s *stubRatingStore) GetRating(ctx context.Context, userID int64, dim rating.Dimension) (rating.Rating, error) {
	if r, ok := s.ratings[userID][dim]; ok {
		return r, nil
	}
	return rating.NewRating(), nil
}

func (s *stubRatingStore) SaveRating(ctx context.Context, userID int64, dim rating.Dimension, r rating.Rating) error {
	if s.ratings[userID] == nil {
		s.ratings[userID] = make(map[rating.Dimension]rating.Rating)
	}
	s.ratings[userID][dim] = r
	return nil
}

func (s *stubRatingStore) GetAllRatings(ctx context.Context, userID int64) (map[rating.Dimension]rating.Rating, error) {
	out := make(map[rating.Dimension]rating.Rating)
	for dim, r := range s.ratings[userID] {
		out[dim] = r
	}
	return out, nil
}

type recordingNotifier struct {
	events map[int64][]model.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[int64][]model.Event)}
}

func (n *recordingNotifier) SendToUser(userID int64, event model.Event) {
	n.events[userID] = append(n.events[userID], event)
}

func (n *recordingNotifier) SendToUsers(userIDs []int64, event model.Event) {
	for _, id := range userIDs {
		n.SendToUser(id, event)
	}
}

func TestPairByRatingFreshEntries(t *testing.T) {
	t.Parallel()
	now := time.Now()
	entries := []model.QueueEntry{
		{UserID: 1, Rating: 1500, JoinedAt: now},
		{UserID: 2, Rating: 1550, JoinedAt: now},
		{UserID: 3, Rating: 1900, JoinedAt: now},
	}

	pair := pairByRating(entries, now)
	if len(pair) != 2 {
		t.Fatalf("expected a pair, got %+v", pair)
	}
	if pair[0].UserID != 1 || pair[1].UserID != 2 {
		t.Fatalf("unexpected pair: %+v", pair)
	}
}

func TestPairByRatingGreedyFirstEligible(t *testing.T) {
	t.Parallel()
	now := time.Now()
	entries := []model.QueueEntry{
		{UserID: 1, Rating: 1500, JoinedAt: now},
		{UserID: 2, Rating: 1900, JoinedAt: now},
		{UserID: 3, Rating: 1950, JoinedAt: now},
	}

	pair := pairByRating(entries, now)
	if len(pair) != 2 {
		t.Fatalf("expected a pair, got %+v", pair)
	}
	if pair[0].UserID != 2 || pair[1].UserID != 3 {
		t.Fatalf("expected the first eligible neighbours (2,3), got %+v", pair)
	}
}

func TestPairByRatingRespectsWindow(t *testing.T) {
	t.Parallel()
	now := time.Now()
	entries := []model.QueueEntry{
		{UserID: 1, Rating: 1500, JoinedAt: now},
		{UserID: 2, Rating: 1700, JoinedAt: now},
	}
	if pair := pairByRating(entries, now); pair != nil {
		t.Fatalf("expected no pair for a 200 gap on fresh entries, got %+v", pair)
	}
}

func TestPairByRatingWindowExpandsWithWait(t *testing.T) {
	t.Parallel()
	now := time.Now()
	waited := now.Add(-40 * time.Second)
	entries := []model.QueueEntry{
		{UserID: 1, Rating: 1500, JoinedAt: waited},
		{UserID: 2, Rating: 1700, JoinedAt: waited},
	}
	pair := pairByRating(entries, now)
	if len(pair) != 2 {
		t.Fatalf("expected an expanded window to cover the 200 gap, got %+v", pair)
	}
}

func TestPairByRatingWindowHoldsBeforeFirstStep(t *testing.T) {
	t.Parallel()
	now := time.Now()
	waited := now.Add(-35 * time.Second)
	entries := []model.QueueEntry{
		{UserID: 1, Rating: 1500, JoinedAt: waited},
		{UserID: 2, Rating: 1700, JoinedAt: waited},
	}
	if pair := pairByRating(entries, now); pair != nil {
		t.Fatalf("expected the window to stay at the initial width until the first full interval elapses, got %+v", pair)
	}
}

func TestPairByRatingBothWindowsMustCover(t *testing.T) {
	t.Parallel()
	now := time.Now()
	entries := []model.QueueEntry{
		{UserID: 1, Rating: 1500, JoinedAt: now.Add(-2 * time.Minute)},
		{UserID: 2, Rating: 1700, JoinedAt: now},
	}
	if pair := pairByRating(entries, now); pair != nil {
		t.Fatal("expected no pair while the fresh entry's window is still narrow")
	}
}

func TestBatchByArrival(t *testing.T) {
	t.Parallel()
	now := time.Now()
	cfg := model.ModeCodeGolf.Config()
	var entries []model.QueueEntry
	for i := int64(1); i <= 10; i++ {
		entries = append(entries, model.QueueEntry{
			UserID:   i,
			Rating:   1500 + float64(i),
			JoinedAt: now.Add(-time.Duration(i) * time.Second),
		})
	}

	group := batchByArrival(entries, cfg)
	if len(group) != cfg.MaxPlayers {
		t.Fatalf("expected a single full lobby of %d, got %d", cfg.MaxPlayers, len(group))
	}
	// Longest waiting player goes first; the remainder waits for the next pass.
	if group[0].UserID != 10 {
		t.Fatalf("expected user 10 first, got %d", group[0].UserID)
	}
	if group[len(group)-1].UserID != 3 {
		t.Fatalf("expected the two freshest entries left behind, lobby ends at %d", group[len(group)-1].UserID)
	}
}

func TestBatchByArrivalBelowMinimum(t *testing.T) {
	t.Parallel()
	cfg := model.ModeBattleRoyale.Config()
	entries := make([]model.QueueEntry, 5)
	if group := batchByArrival(entries, cfg); group != nil {
		t.Fatalf("expected no lobby below minimum, got %d entries", len(group))
	}
}

func TestJoinQueuesOnCompositeRating(t *testing.T) {
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })

	queues := repository.NewQueueRepository(cacheClient)
	store := &stubRatingStore{ratings: map[int64]map[rating.Dimension]rating.Rating{
		1: {rating.DimensionAlgorithms: {Rating: 2000, RD: 60, Volatility: 0.06}},
	}}
	svc := NewMatchmakingService(MatchmakingConfig{Queues: queues, Ratings: store, Notify: newRecordingNotifier()})

	ctx := context.Background()
	if _, err := svc.Join(ctx, 1, model.ModeBlitz1v1); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	entries, err := queues.Entries(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	all, _ := store.GetAllRatings(ctx, 1)
	want := rating.Composite(all)
	if entries[0].Rating != want {
		t.Fatalf("queue score = %v, want composite %v", entries[0].Rating, want)
	}
	// Blitz ranks on speed; the inflated algorithms rating must still lift
	// the queue score above the initial baseline.
	if entries[0].Rating <= rating.InitialRating {
		t.Fatalf("composite score %v did not reflect the algorithms dimension", entries[0].Rating)
	}
}

func TestExpireStale(t *testing.T) {
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })

	queues := repository.NewQueueRepository(cacheClient)
	notify := newRecordingNotifier()
	svc := NewMatchmakingService(MatchmakingConfig{Queues: queues, Notify: notify})

	now := time.Now()
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := queues.Join(ctx, model.ModeBlitz1v1, 1, 1500, now.Add(-4*time.Minute)); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := queues.Join(ctx, model.ModeBlitz1v1, 2, 1510, now); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	entries, err := queues.Entries(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	kept := svc.expireStale(ctx, model.ModeBlitz1v1, entries)
	if len(kept) != 1 || kept[0].UserID != 2 {
		t.Fatalf("expected only user 2 kept, got %+v", kept)
	}

	events := notify.events[1]
	if len(events) != 1 {
		t.Fatalf("expected 1 expiry event for user 1, got %d", len(events))
	}
	remaining, err := queues.Entries(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected expired entry removed from queue, got %+v", remaining)
	}
}
