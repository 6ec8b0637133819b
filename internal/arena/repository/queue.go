package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/arena/model"
	"codearena/internal/common/cache"
	"codearena/pkg/errors"
)

const (
	queueKeyPrefix = "mm:queue:"
	waitKeyPrefix  = "mm:wait:"
	lockKeyPrefix  = "mm:lock:"

	// waitTTL bounds how long an entry may sit in the queue. Expired wait
	// markers cause the entry to be swept on the next pairing pass.
	waitTTL = 5 * time.Minute

	pairingLockTTL = 10 * time.Second
)

// QueueRepository stores matchmaking queues as redis sorted sets keyed by
// mode, scored by composite rating.
type QueueRepository struct {
	cache cache.Cache
}

// NewQueueRepository creates a queue repository.
func NewQueueRepository(cacheClient cache.Cache) *QueueRepository {
	return &QueueRepository{cache: cacheClient}
}

func queueKey(mode model.GameMode) string {
	return queueKeyPrefix + string(mode)
}

func waitKey(userID int64, mode model.GameMode) string {
	return fmt.Sprintf("%s%d:%s", waitKeyPrefix, userID, mode)
}

// Join adds a player to the mode's queue. A player already waiting in this
// mode keeps the original entry and Join reports joined=false.
func (r *QueueRepository) Join(ctx context.Context, mode model.GameMode, userID int64, ratingScore float64, now time.Time) (bool, error) {
	set, err := r.cache.SetNX(ctx, waitKey(userID, mode), strconv.FormatInt(now.UnixMilli(), 10), waitTTL)
	if err != nil {
		return false, errors.Wrap(err, errors.QueueJoinFailed)
	}
	if !set {
		return false, nil
	}
	member := strconv.FormatInt(userID, 10)
	if err := r.cache.ZAdd(ctx, queueKey(mode), cache.ZMember{Score: ratingScore, Member: member}); err != nil {
		_ = r.cache.Del(ctx, waitKey(userID, mode))
		return false, errors.Wrap(err, errors.QueueJoinFailed)
	}
	return true, nil
}

// Leave removes a player from the mode's queue.
func (r *QueueRepository) Leave(ctx context.Context, mode model.GameMode, userID int64) error {
	member := strconv.FormatInt(userID, 10)
	if err := r.cache.ZRem(ctx, queueKey(mode), member); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	return r.cache.Del(ctx, waitKey(userID, mode))
}

// Remove drops a batch of players from the queue, markers included.
func (r *QueueRepository) Remove(ctx context.Context, mode model.GameMode, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]string, 0, len(userIDs))
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, strconv.FormatInt(id, 10))
		keys = append(keys, waitKey(id, mode))
	}
	if err := r.cache.ZRem(ctx, queueKey(mode), members...); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	return r.cache.Del(ctx, keys...)
}

// Requeue restores previously removed entries, preserving join times.
func (r *QueueRepository) Requeue(ctx context.Context, mode model.GameMode, entries []model.QueueEntry) error {
	for _, e := range entries {
		_ = r.cache.Set(ctx, waitKey(e.UserID, mode), strconv.FormatInt(e.JoinedAt.UnixMilli(), 10), waitTTL)
		if err := r.cache.ZAdd(ctx, queueKey(mode), cache.ZMember{
			Score:  e.Rating,
			Member: strconv.FormatInt(e.UserID, 10),
		}); err != nil {
			return errors.Wrap(err, errors.CacheError)
		}
	}
	return nil
}

// Entries returns the queue sorted by rating ascending. Entries whose wait
// marker has expired are swept and omitted.
func (r *QueueRepository) Entries(ctx context.Context, mode model.GameMode) ([]model.QueueEntry, error) {
	members, err := r.cache.ZRangeWithScores(ctx, queueKey(mode), 0, -1)
	if err != nil {
		return nil, errors.Wrap(err, errors.CacheError)
	}
	entries := make([]model.QueueEntry, 0, len(members))
	for _, m := range members {
		userID, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			_ = r.cache.ZRem(ctx, queueKey(mode), m.Member)
			continue
		}
		raw, err := r.cache.Get(ctx, waitKey(userID, mode))
		if err != nil {
			return nil, errors.Wrap(err, errors.CacheError)
		}
		if raw == "" {
			// Marker expired: sweep the stale entry.
			_ = r.cache.ZRem(ctx, queueKey(mode), m.Member)
			continue
		}
		joinedMilli, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			_ = r.cache.ZRem(ctx, queueKey(mode), m.Member)
			_ = r.cache.Del(ctx, waitKey(userID, mode))
			continue
		}
		entries = append(entries, model.QueueEntry{
			UserID:   userID,
			Rating:   m.Score,
			JoinedAt: time.UnixMilli(joinedMilli).UTC(),
		})
	}
	return entries, nil
}

// Position returns the 1-based rating-order position and queue size.
func (r *QueueRepository) Position(ctx context.Context, mode model.GameMode, userID int64) (int, int, error) {
	member := strconv.FormatInt(userID, 10)
	rank, err := r.cache.ZRank(ctx, queueKey(mode), member)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.CacheError)
	}
	size, err := r.cache.ZCard(ctx, queueKey(mode))
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.CacheError)
	}
	if rank < 0 {
		return 0, int(size), errors.New(errors.NotInQueue)
	}
	return int(rank) + 1, int(size), nil
}

// AcquirePairingLock gates a pairing pass for the mode.
func (r *QueueRepository) AcquirePairingLock(ctx context.Context, mode model.GameMode) (bool, error) {
	return r.cache.TryLock(ctx, lockKeyPrefix+string(mode), pairingLockTTL)
}

// ReleasePairingLock releases the mode's pairing lock.
func (r *QueueRepository) ReleasePairingLock(ctx context.Context, mode model.GameMode) error {
	return r.cache.Unlock(ctx, lockKeyPrefix+string(mode))
}
