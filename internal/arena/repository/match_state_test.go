package repository

import (
	"context"
	"testing"
	"time"

	"codearena/internal/arena/model"
	"codearena/internal/common/cache"
	"codearena/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

func newTestStateRepo(t *testing.T) *MatchStateRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })
	return NewMatchStateRepository(cacheClient)
}

func testSnapshot() *model.MatchSnapshot {
	return &model.MatchSnapshot{
		MatchID:  "m-1",
		Mode:     model.ModeBlitz1v1,
		Status:   model.StatusWaiting,
		Problems: []model.ProblemRef{{ID: 10, Difficulty: "EASY"}, {ID: 11, Difficulty: "HARD"}},
		Players: []model.PlayerState{
			{UserID: 1},
			{UserID: 2},
		},
		Duration:  30 * time.Minute,
		CreatedAt: time.Now().Truncate(time.Second),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo := newTestStateRepo(t)
	ctx := context.Background()
	snapshot := testSnapshot()

	if err := repo.Save(ctx, snapshot); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := repo.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.MatchID != snapshot.MatchID || got.Mode != snapshot.Mode || got.Status != snapshot.Status {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
	if len(got.Problems) != 2 || got.Problems[1].Difficulty != "HARD" {
		t.Fatalf("problems mismatch: %+v", got.Problems)
	}
	if len(got.Players) != 2 {
		t.Fatalf("players mismatch: %+v", got.Players)
	}
	if got.Duration != 30*time.Minute {
		t.Fatalf("duration mismatch: %v", got.Duration)
	}
	if !got.StartedAt.IsZero() {
		t.Fatalf("expected zero start instant, got %v", got.StartedAt)
	}
}

func TestGetMissingMatch(t *testing.T) {
	repo := newTestStateRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, errors.MatchNotFound) {
		t.Fatalf("expected MatchNotFound, got %v", err)
	}
}

func TestSetStartedMakesMatchActive(t *testing.T) {
	repo := newTestStateRepo(t)
	ctx := context.Background()
	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	startedAt := time.Now().Truncate(time.Second)
	if err := repo.SetStarted(ctx, "m-1", startedAt); err != nil {
		t.Fatalf("set started failed: %v", err)
	}
	got, err := repo.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", got.Status)
	}
	if !got.StartedAt.Equal(startedAt.UTC().Truncate(time.Second)) {
		t.Fatalf("start instant mismatch: got %v want %v", got.StartedAt, startedAt)
	}
}

func TestAckOncePerPlayer(t *testing.T) {
	repo := newTestStateRepo(t)
	ctx := context.Background()
	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	first, err := repo.Ack(ctx, "m-1", 1)
	if err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	if !first {
		t.Fatal("expected first ack to register")
	}
	again, err := repo.Ack(ctx, "m-1", 1)
	if err != nil {
		t.Fatalf("second ack failed: %v", err)
	}
	if again {
		t.Fatal("expected repeated ack to be a no-op")
	}

	all, err := repo.AllAcked(ctx, "m-1", []int64{1, 2})
	if err != nil {
		t.Fatalf("all acked failed: %v", err)
	}
	if all {
		t.Fatal("expected pending ack for player 2")
	}
	if _, err := repo.Ack(ctx, "m-1", 2); err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	all, err = repo.AllAcked(ctx, "m-1", []int64{1, 2})
	if err != nil {
		t.Fatalf("all acked failed: %v", err)
	}
	if !all {
		t.Fatal("expected every player acked")
	}
}

func TestClaimProblemLockSingleWinner(t *testing.T) {
	repo := newTestStateRepo(t)
	ctx := context.Background()
	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	won, err := repo.ClaimProblemLock(ctx, "m-1", 10, 1)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !won {
		t.Fatal("expected first claim to win")
	}
	won, err = repo.ClaimProblemLock(ctx, "m-1", 10, 2)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if won {
		t.Fatal("expected second claim to lose")
	}

	locked, err := repo.ProblemLocked(ctx, "m-1", 10)
	if err != nil {
		t.Fatalf("locked check failed: %v", err)
	}
	if !locked {
		t.Fatal("expected problem to be locked")
	}
	locked, err = repo.ProblemLocked(ctx, "m-1", 11)
	if err != nil {
		t.Fatalf("locked check failed: %v", err)
	}
	if locked {
		t.Fatal("expected other problem to stay open")
	}
}

func TestDisconnectMarkers(t *testing.T) {
	repo := newTestStateRepo(t)
	ctx := context.Background()
	if err := repo.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := repo.SetDisconnected(ctx, "m-1", 1, time.Now()); err != nil {
		t.Fatalf("set disconnected failed: %v", err)
	}
	cleared, err := repo.ClearDisconnected(ctx, "m-1", 1)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !cleared {
		t.Fatal("expected marker to exist")
	}
	cleared, err = repo.ClearDisconnected(ctx, "m-1", 1)
	if err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
	if cleared {
		t.Fatal("expected marker already cleared")
	}
}
