package repository

import (
	"context"
	"strconv"
	"time"

	"codearena/internal/arena/model"
	"codearena/internal/common/cache"
	"codearena/pkg/errors"
)

const matchKeyPrefix = "match:"

// MatchStateRepository stores live match snapshots as redis hashes.
// Single-field claims (ack, problem lock, disconnect) are atomic HSETNX/HSET
// operations on the same hash as the snapshot blob.
type MatchStateRepository struct {
	cache cache.Cache
}

// NewMatchStateRepository creates a match state repository.
func NewMatchStateRepository(cacheClient cache.Cache) *MatchStateRepository {
	return &MatchStateRepository{cache: cacheClient}
}

func matchKey(matchID string) string {
	return matchKeyPrefix + matchID
}

// Save writes the full snapshot and refreshes the TTL.
func (r *MatchStateRepository) Save(ctx context.Context, snapshot *model.MatchSnapshot) error {
	fields, err := snapshot.Encode()
	if err != nil {
		return err
	}
	key := matchKey(snapshot.MatchID)
	if err := r.cache.HMSet(ctx, key, fields); err != nil {
		return errors.Wrap(err, errors.CacheSetFailed)
	}
	if err := r.cache.Expire(ctx, key, model.SnapshotTTL); err != nil {
		return errors.Wrap(err, errors.CacheSetFailed)
	}
	return nil
}

// Get loads and decodes a snapshot.
func (r *MatchStateRepository) Get(ctx context.Context, matchID string) (*model.MatchSnapshot, error) {
	fields, err := r.cache.HGetAll(ctx, matchKey(matchID))
	if err != nil {
		return nil, errors.Wrap(err, errors.CacheError)
	}
	return model.DecodeSnapshot(fields)
}

// UpdatePlayers rewrites only the players blob.
func (r *MatchStateRepository) UpdatePlayers(ctx context.Context, snapshot *model.MatchSnapshot) error {
	players, err := snapshot.EncodePlayers()
	if err != nil {
		return err
	}
	if err := r.cache.HSet(ctx, matchKey(snapshot.MatchID), model.PlayersField(), players); err != nil {
		return errors.Wrap(err, errors.CacheSetFailed)
	}
	return nil
}

// SetStatus rewrites only the status field.
func (r *MatchStateRepository) SetStatus(ctx context.Context, matchID string, status model.MatchStatus) error {
	if err := r.cache.HSet(ctx, matchKey(matchID), model.StatusField(), string(status)); err != nil {
		return errors.Wrap(err, errors.CacheSetFailed)
	}
	return nil
}

// SetStarted marks the match ACTIVE with the authoritative start instant.
func (r *MatchStateRepository) SetStarted(ctx context.Context, matchID string, startedAt time.Time) error {
	fields := map[string]interface{}{
		model.StatusField():    string(model.StatusActive),
		model.StartedAtField(): strconv.FormatInt(startedAt.Unix(), 10),
	}
	if err := r.cache.HMSet(ctx, matchKey(matchID), fields); err != nil {
		return errors.Wrap(err, errors.CacheSetFailed)
	}
	return nil
}

// Ack records a player's ready acknowledgement. Returns false when the
// player had already acked.
func (r *MatchStateRepository) Ack(ctx context.Context, matchID string, userID int64) (bool, error) {
	set, err := r.cache.HSetNX(ctx, matchKey(matchID), model.AckField(userID), "1")
	if err != nil {
		return false, errors.Wrap(err, errors.CacheError)
	}
	return set, nil
}

// AllAcked reports whether every listed player has acked.
func (r *MatchStateRepository) AllAcked(ctx context.Context, matchID string, userIDs []int64) (bool, error) {
	for _, id := range userIDs {
		ok, err := r.cache.HExists(ctx, matchKey(matchID), model.AckField(id))
		if err != nil {
			return false, errors.Wrap(err, errors.CacheError)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ClaimProblemLock atomically claims first-solver lockout of a problem.
// Exactly one caller wins; the stored value is the winner's user id.
func (r *MatchStateRepository) ClaimProblemLock(ctx context.Context, matchID string, problemID, userID int64) (bool, error) {
	won, err := r.cache.HSetNX(ctx, matchKey(matchID), model.LockField(problemID), strconv.FormatInt(userID, 10))
	if err != nil {
		return false, errors.Wrap(err, errors.CacheError)
	}
	return won, nil
}

// ProblemLocked reports whether the problem is already locked.
func (r *MatchStateRepository) ProblemLocked(ctx context.Context, matchID string, problemID int64) (bool, error) {
	ok, err := r.cache.HExists(ctx, matchKey(matchID), model.LockField(problemID))
	if err != nil {
		return false, errors.Wrap(err, errors.CacheError)
	}
	return ok, nil
}

// SetDisconnected marks a player as disconnected.
func (r *MatchStateRepository) SetDisconnected(ctx context.Context, matchID string, userID int64, at time.Time) error {
	if err := r.cache.HSet(ctx, matchKey(matchID), model.DisconnectField(userID), strconv.FormatInt(at.Unix(), 10)); err != nil {
		return errors.Wrap(err, errors.CacheSetFailed)
	}
	return nil
}

// ClearDisconnected removes a player's disconnect marker. Returns whether a
// marker existed.
func (r *MatchStateRepository) ClearDisconnected(ctx context.Context, matchID string, userID int64) (bool, error) {
	existed, err := r.cache.HExists(ctx, matchKey(matchID), model.DisconnectField(userID))
	if err != nil {
		return false, errors.Wrap(err, errors.CacheError)
	}
	if existed {
		if err := r.cache.HDel(ctx, matchKey(matchID), model.DisconnectField(userID)); err != nil {
			return false, errors.Wrap(err, errors.CacheError)
		}
	}
	return existed, nil
}

// Delete removes the snapshot outright.
func (r *MatchStateRepository) Delete(ctx context.Context, matchID string) error {
	return r.cache.Del(ctx, matchKey(matchID))
}
