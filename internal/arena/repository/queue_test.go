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

func newTestQueueRepo(t *testing.T) (*QueueRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })
	return NewQueueRepository(cacheClient), mr
}

func TestQueueJoinIsIdempotent(t *testing.T) {
	repo, _ := newTestQueueRepo(t)
	ctx := context.Background()
	now := time.Now()

	joined, err := repo.Join(ctx, model.ModeBlitz1v1, 1, 1500, now)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if !joined {
		t.Fatal("expected first join to succeed")
	}

	joined, err = repo.Join(ctx, model.ModeBlitz1v1, 1, 1600, now)
	if err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if joined {
		t.Fatal("expected second join to be rejected")
	}
}

func TestQueueEntriesSortedByRating(t *testing.T) {
	repo, _ := newTestQueueRepo(t)
	ctx := context.Background()
	now := time.Now()

	for _, p := range []struct {
		userID int64
		rating float64
	}{{1, 1800}, {2, 1500}, {3, 1650}} {
		if _, err := repo.Join(ctx, model.ModeBlitz1v1, p.userID, p.rating, now); err != nil {
			t.Fatalf("join %d failed: %v", p.userID, err)
		}
	}

	entries, err := repo.Entries(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantOrder := []int64{2, 3, 1}
	for i, want := range wantOrder {
		if entries[i].UserID != want {
			t.Fatalf("position %d: got user %d, want %d", i, entries[i].UserID, want)
		}
	}
}

func TestQueueEntriesSweepsExpiredMarkers(t *testing.T) {
	repo, mr := newTestQueueRepo(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := repo.Join(ctx, model.ModeBlitz1v1, 1, 1500, now); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := repo.Join(ctx, model.ModeBlitz1v1, 2, 1550, now); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Drop one wait marker as if its TTL ran out.
	mr.Del("mm:wait:1:BLITZ_1V1")

	entries, err := repo.Entries(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != 2 {
		t.Fatalf("expected only user 2 to remain, got %+v", entries)
	}
}

func TestQueuePosition(t *testing.T) {
	repo, _ := newTestQueueRepo(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := repo.Join(ctx, model.ModeBlitz1v1, 1, 1500, now); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := repo.Join(ctx, model.ModeBlitz1v1, 2, 1400, now); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	position, size, err := repo.Position(ctx, model.ModeBlitz1v1, 1)
	if err != nil {
		t.Fatalf("position failed: %v", err)
	}
	if position != 2 || size != 2 {
		t.Fatalf("got position %d size %d, want 2 2", position, size)
	}

	_, _, err = repo.Position(ctx, model.ModeBlitz1v1, 99)
	if !errors.Is(err, errors.NotInQueue) {
		t.Fatalf("expected NotInQueue, got %v", err)
	}
}

func TestQueueRemoveAndRequeue(t *testing.T) {
	repo, _ := newTestQueueRepo(t)
	ctx := context.Background()
	joined := time.Now().Add(-20 * time.Second).Truncate(time.Millisecond)

	if _, err := repo.Join(ctx, model.ModeBlitz1v1, 1, 1500, joined); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := repo.Remove(ctx, model.ModeBlitz1v1, []int64{1}); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	entries, err := repo.Entries(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty queue, got %+v", entries)
	}

	err = repo.Requeue(ctx, model.ModeBlitz1v1, []model.QueueEntry{{UserID: 1, Rating: 1500, JoinedAt: joined}})
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	entries, err = repo.Entries(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after requeue, got %d", len(entries))
	}
	if !entries[0].JoinedAt.Equal(joined.UTC()) {
		t.Fatalf("expected join instant preserved, got %v want %v", entries[0].JoinedAt, joined.UTC())
	}
}

func TestPairingLock(t *testing.T) {
	repo, _ := newTestQueueRepo(t)
	ctx := context.Background()

	locked, err := repo.AcquirePairingLock(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !locked {
		t.Fatal("expected lock to be acquired")
	}

	locked, err = repo.AcquirePairingLock(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if locked {
		t.Fatal("expected lock to be held")
	}

	if err := repo.ReleasePairingLock(ctx, model.ModeBlitz1v1); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	locked, err = repo.AcquirePairingLock(ctx, model.ModeBlitz1v1)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if !locked {
		t.Fatal("expected lock to be reacquirable after release")
	}
}
