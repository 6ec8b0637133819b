package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"codearena/internal/arena/model"
	"codearena/internal/arena/repository"
	"codearena/internal/catalog"
	"codearena/internal/rating"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier pushes events to connected players. Satisfied by ws.Hub.
type Notifier interface {
	SendToUser(userID int64, event model.Event)
	SendToUsers(userIDs []int64, event model.Event)
}

// MatchTracker is told about every freshly created match so it can run the
// ready handshake. Satisfied by MatchCoordinator.
type MatchTracker interface {
	TrackWaiting(snapshot *model.MatchSnapshot)
}

// MatchmakingService maintains per-mode queues and pairs players into matches.
type MatchmakingService struct {
	queues  *repository.QueueRepository
	states  *repository.MatchStateRepository
	store   *repository.MatchStore
	ratings rating.Store
	catalog *catalog.Client
	notify  Notifier
	tracker MatchTracker

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// MatchmakingConfig holds matchmaking dependencies.
type MatchmakingConfig struct {
	Queues  *repository.QueueRepository
	States  *repository.MatchStateRepository
	Store   *repository.MatchStore
	Ratings rating.Store
	Catalog *catalog.Client
	Notify  Notifier
	Tracker MatchTracker
}

// NewMatchmakingService creates the matchmaking service.
func NewMatchmakingService(cfg MatchmakingConfig) *MatchmakingService {
	return &MatchmakingService{
		queues:  cfg.Queues,
		states:  cfg.States,
		store:   cfg.Store,
		ratings: cfg.Ratings,
		catalog: cfg.Catalog,
		notify:  cfg.Notify,
		tracker: cfg.Tracker,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Join puts a player into the queue for the given mode. The queue score is
// the player's composite rating across all dimensions, so pairing windows
// compare overall strength regardless of the mode's primary dimension.
func (s *MatchmakingService) Join(ctx context.Context, userID int64, mode model.GameMode) (model.QueueUpdatePayload, error) {
	if !mode.Valid() {
		return model.QueueUpdatePayload{}, appErr.Newf(appErr.UnknownGameMode, "unknown game mode %q", string(mode))
	}
	ratings, err := s.ratings.GetAllRatings(ctx, userID)
	if err != nil {
		return model.QueueUpdatePayload{}, err
	}
	composite := rating.Composite(ratings)
	joined, err := s.queues.Join(ctx, mode, userID, composite, s.now())
	if err != nil {
		return model.QueueUpdatePayload{}, err
	}
	if !joined {
		return model.QueueUpdatePayload{}, appErr.New(appErr.AlreadyInQueue)
	}
	position, size, err := s.queues.Position(ctx, mode, userID)
	if err != nil {
		return model.QueueUpdatePayload{}, err
	}
	update := model.QueueUpdatePayload{Mode: mode, Position: position, Size: size}
	s.notify.SendToUser(userID, model.NewEvent(model.EventQueueUpdate, update))
	logger.Info(ctx, "player joined queue",
		zap.Int64("user_id", userID),
		zap.String("mode", string(mode)),
		zap.Float64("rating", composite),
		zap.Int("position", position))
	return update, nil
}

// Leave removes a player from the queue for the given mode.
func (s *MatchmakingService) Leave(ctx context.Context, userID int64, mode model.GameMode) error {
	if !mode.Valid() {
		return appErr.Newf(appErr.UnknownGameMode, "unknown game mode %q", string(mode))
	}
	if err := s.queues.Leave(ctx, mode, userID); err != nil {
		return err
	}
	logger.Info(ctx, "player left queue", zap.Int64("user_id", userID), zap.String("mode", string(mode)))
	return nil
}

// Position reports a player's 1-based position and the queue size.
func (s *MatchmakingService) Position(ctx context.Context, userID int64, mode model.GameMode) (model.QueueUpdatePayload, error) {
	if !mode.Valid() {
		return model.QueueUpdatePayload{}, appErr.Newf(appErr.UnknownGameMode, "unknown game mode %q", string(mode))
	}
	position, size, err := s.queues.Position(ctx, mode, userID)
	if err != nil {
		return model.QueueUpdatePayload{}, err
	}
	return model.QueueUpdatePayload{Mode: mode, Position: position, Size: size}, nil
}

// Start runs the pairing loop until Stop is called.
func (s *MatchmakingService) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(model.QueuePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, mode := range model.AllModes() {
					s.pairMode(ctx, mode)
				}
			}
		}
	}()
}

// Stop halts the pairing loop and waits for it to exit.
func (s *MatchmakingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// pairMode runs one pairing pass for a mode under the pairing lock, so only
// one instance pairs a given queue at a time.
func (s *MatchmakingService) pairMode(ctx context.Context, mode model.GameMode) {
	locked, err := s.queues.AcquirePairingLock(ctx, mode)
	if err != nil {
		logger.Warn(ctx, "pairing lock failed", zap.String("mode", string(mode)), zap.Error(err))
		return
	}
	if !locked {
		return
	}
	defer func() {
		if err := s.queues.ReleasePairingLock(ctx, mode); err != nil {
			logger.Warn(ctx, "pairing unlock failed", zap.String("mode", string(mode)), zap.Error(err))
		}
	}()

	entries, err := s.queues.Entries(ctx, mode)
	if err != nil {
		logger.Warn(ctx, "read queue failed", zap.String("mode", string(mode)), zap.Error(err))
		return
	}
	entries = s.expireStale(ctx, mode, entries)
	if len(entries) < mode.Config().MinPlayers {
		return
	}

	// At most one match per pass; remaining candidates wait for the next tick.
	var group []model.QueueEntry
	if mode.Config().MaxPlayers == 2 {
		group = pairByRating(entries, s.now())
	} else {
		group = batchByArrival(entries, mode.Config())
	}
	if len(group) == 0 {
		return
	}
	s.createMatch(ctx, mode, group)
}

// expireStale drops entries that waited past the queue cap and tells them.
// A zero position in the update means the player is no longer queued.
func (s *MatchmakingService) expireStale(ctx context.Context, mode model.GameMode, entries []model.QueueEntry) []model.QueueEntry {
	now := s.now()
	kept := entries[:0]
	var expired []int64
	for _, entry := range entries {
		if entry.Waited(now) > model.MaxQueueTime {
			expired = append(expired, entry.UserID)
			continue
		}
		kept = append(kept, entry)
	}
	if len(expired) == 0 {
		return kept
	}
	if err := s.queues.Remove(ctx, mode, expired); err != nil {
		logger.Warn(ctx, "expire queue entries failed", zap.String("mode", string(mode)), zap.Error(err))
		return kept
	}
	for _, userID := range expired {
		s.notify.SendToUser(userID, model.NewEvent(model.EventQueueUpdate, model.QueueUpdatePayload{
			Mode:     mode,
			Position: 0,
			Size:     len(kept),
		}))
	}
	logger.Info(ctx, "expired queue entries", zap.String("mode", string(mode)), zap.Int("count", len(expired)))
	return kept
}

// pairByRating returns the first rating-adjacent pair whose mutual windows
// cover the gap, or nil. Entries arrive sorted by rating, so only neighbours
// are candidates.
func pairByRating(entries []model.QueueEntry, now time.Time) []model.QueueEntry {
	for i := 0; i+1 < len(entries); i++ {
		a, b := entries[i], entries[i+1]
		gap := b.Rating - a.Rating
		if gap < 0 {
			gap = -gap
		}
		allowedA := float64(model.AllowedRange(a.Waited(now)))
		allowedB := float64(model.AllowedRange(b.Waited(now)))
		if gap <= allowedA && gap <= allowedB {
			return []model.QueueEntry{a, b}
		}
	}
	return nil
}

// batchByArrival fills one lobby first come first served once the minimum
// player count is reached, or returns nil.
func batchByArrival(entries []model.QueueEntry, cfg model.ModeConfig) []model.QueueEntry {
	if len(entries) < cfg.MinPlayers {
		return nil
	}
	ordered := make([]model.QueueEntry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
	})
	size := len(ordered)
	if size > cfg.MaxPlayers {
		size = cfg.MaxPlayers
	}
	return ordered[:size]
}

// createMatch removes the group from the queue, assembles a snapshot and
// makes it durable. Any failure after removal requeues the group with the
// original join instants preserved.
func (s *MatchmakingService) createMatch(ctx context.Context, mode model.GameMode, group []model.QueueEntry) {
	userIDs := make([]int64, 0, len(group))
	for _, entry := range group {
		userIDs = append(userIDs, entry.UserID)
	}
	if err := s.queues.Remove(ctx, mode, userIDs); err != nil {
		logger.Warn(ctx, "dequeue matched players failed", zap.String("mode", string(mode)), zap.Error(err))
		return
	}

	snapshot, err := s.buildSnapshot(ctx, mode, group)
	if err == nil {
		if saveErr := s.states.Save(ctx, snapshot); saveErr != nil {
			err = saveErr
		} else if storeErr := s.store.Create(ctx, snapshot); storeErr != nil {
			err = storeErr
		}
	}
	if err != nil {
		logger.Error(ctx, "create match failed", zap.String("mode", string(mode)), zap.Error(err))
		if requeueErr := s.queues.Requeue(ctx, mode, group); requeueErr != nil {
			logger.Error(ctx, "requeue after failed match failed", zap.String("mode", string(mode)), zap.Error(requeueErr))
		}
		return
	}

	s.notify.SendToUsers(userIDs, model.NewEvent(model.EventMatchFound, model.MatchFoundPayload{
		MatchID:  snapshot.MatchID,
		Mode:     mode,
		Players:  userIDs,
		Problems: snapshot.Problems,
	}))
	if s.tracker != nil {
		s.tracker.TrackWaiting(snapshot)
	}
	logger.Info(ctx, "match created",
		zap.String("match_id", snapshot.MatchID),
		zap.String("mode", string(mode)),
		zap.Int("players", len(userIDs)))
}

func (s *MatchmakingService) buildSnapshot(ctx context.Context, mode model.GameMode, group []model.QueueEntry) (*model.MatchSnapshot, error) {
	cfg := mode.Config()
	problems, err := s.catalog.SelectRandom(ctx, "", cfg.ProblemCount)
	if err != nil {
		return nil, err
	}
	refs := make([]model.ProblemRef, 0, len(problems))
	for _, p := range problems {
		refs = append(refs, model.ProblemRef{ID: p.ID, Difficulty: p.Difficulty})
	}
	players := make([]model.PlayerState, 0, len(group))
	for _, entry := range group {
		players = append(players, model.PlayerState{UserID: entry.UserID})
	}
	return &model.MatchSnapshot{
		MatchID:   uuid.NewString(),
		Mode:      mode,
		Status:    model.StatusWaiting,
		Problems:  refs,
		Players:   players,
		Duration:  cfg.Duration,
		CreatedAt: s.now(),
	}, nil
}
