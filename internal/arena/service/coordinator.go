package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"codearena/internal/arena/model"
	"codearena/internal/arena/repository"
	judgemodel "codearena/internal/judge/model"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/rating"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	finalizeAttempts    = 3
	finalizeBackoffBase = 200 * time.Millisecond
)

// MatchCoordinator drives the lifecycle of live matches: the ready
// handshake, the authoritative timer, verdict application and finalization.
// All snapshot read-modify-writes for one match are serialized behind a
// per-match mutex.
type MatchCoordinator struct {
	states *repository.MatchStateRepository
	store  *repository.MatchStore
	engine *rating.Engine
	intake *judgesvc.IntakeService
	notify Notifier

	now func() time.Time

	mu      sync.Mutex
	matches map[string]*matchHandle
	users   map[int64]string
}

// matchHandle is the in-process state for one tracked match.
type matchHandle struct {
	mu      sync.Mutex
	matchID string
	cancel  context.CancelFunc
}

// CoordinatorConfig holds coordinator dependencies.
type CoordinatorConfig struct {
	States *repository.MatchStateRepository
	Store  *repository.MatchStore
	Engine *rating.Engine
	Intake *judgesvc.IntakeService
	Notify Notifier
}

// NewMatchCoordinator creates the coordinator.
func NewMatchCoordinator(cfg CoordinatorConfig) *MatchCoordinator {
	return &MatchCoordinator{
		states:  cfg.States,
		store:   cfg.Store,
		engine:  cfg.Engine,
		intake:  cfg.Intake,
		notify:  cfg.Notify,
		now:     time.Now,
		matches: make(map[string]*matchHandle),
		users:   make(map[int64]string),
	}
}

// TrackWaiting registers a freshly created match and arms the ready
// watchdog: a match whose players do not all ack in time is cancelled.
func (c *MatchCoordinator) TrackWaiting(snapshot *model.MatchSnapshot) {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &matchHandle{matchID: snapshot.MatchID, cancel: cancel}

	c.mu.Lock()
	c.matches[snapshot.MatchID] = handle
	for _, p := range snapshot.Players {
		c.users[p.UserID] = snapshot.MatchID
	}
	c.mu.Unlock()

	go c.readyWatchdog(ctx, handle)
}

func (c *MatchCoordinator) handle(matchID string) *matchHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matches[matchID]
}

func (c *MatchCoordinator) readyWatchdog(ctx context.Context, handle *matchHandle) {
	timer := time.NewTimer(model.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	bg := context.Background()
	snapshot, err := c.states.Get(bg, handle.matchID)
	if err != nil {
		logger.Warn(bg, "ready watchdog read failed", zap.String("match_id", handle.matchID), zap.Error(err))
		return
	}
	if snapshot.Status != model.StatusWaiting {
		return
	}
	c.cancelMatch(bg, snapshot)
}

// cancelMatch transitions WAITING→CANCELLED. Queue entries are not
// restored; players re-join explicitly. Caller holds the match mutex.
func (c *MatchCoordinator) cancelMatch(ctx context.Context, snapshot *model.MatchSnapshot) {
	if err := c.states.SetStatus(ctx, snapshot.MatchID, model.StatusCancelled); err != nil {
		logger.Error(ctx, "cancel match snapshot failed", zap.String("match_id", snapshot.MatchID), zap.Error(err))
	}
	if err := c.store.SetStatus(ctx, snapshot.MatchID, model.StatusCancelled, c.now()); err != nil {
		logger.Error(ctx, "cancel match store failed", zap.String("match_id", snapshot.MatchID), zap.Error(err))
	}
	c.notify.SendToUsers(playerIDs(snapshot), model.NewEvent(model.EventMatchEnd, model.MatchEndPayload{
		MatchID: snapshot.MatchID,
		Status:  model.StatusCancelled,
		Players: snapshot.Players,
	}))
	c.release(snapshot)
	logger.Info(ctx, "match cancelled before start", zap.String("match_id", snapshot.MatchID))
}

// Ready records one player's acknowledgement. When every player has acked,
// the match starts: the server start instant becomes authoritative and the
// per-second timer begins.
func (c *MatchCoordinator) Ready(ctx context.Context, matchID string, userID int64) error {
	handle := c.handle(matchID)
	if handle == nil {
		return appErr.New(appErr.MatchNotFound)
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()

	snapshot, err := c.states.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if snapshot.Status != model.StatusWaiting {
		return appErr.New(appErr.MatchNotWaiting)
	}
	if snapshot.Player(userID) == nil {
		return appErr.New(appErr.PlayerNotInMatch)
	}
	if _, err := c.states.Ack(ctx, matchID, userID); err != nil {
		return err
	}
	allAcked, err := c.states.AllAcked(ctx, matchID, playerIDs(snapshot))
	if err != nil {
		return err
	}
	if !allAcked {
		return nil
	}
	return c.startMatch(ctx, handle, snapshot)
}

// startMatch transitions WAITING→ACTIVE. Caller holds the match mutex.
func (c *MatchCoordinator) startMatch(ctx context.Context, handle *matchHandle, snapshot *model.MatchSnapshot) error {
	startedAt := c.now()
	if err := c.states.SetStarted(ctx, snapshot.MatchID, startedAt); err != nil {
		return err
	}
	if err := c.store.SetStatus(ctx, snapshot.MatchID, model.StatusActive, startedAt); err != nil {
		logger.Error(ctx, "persist match start failed", zap.String("match_id", snapshot.MatchID), zap.Error(err))
	}
	snapshot.Status = model.StatusActive
	snapshot.StartedAt = startedAt

	// Replace the ready watchdog with the match timer.
	handle.cancel()
	timerCtx, cancel := context.WithCancel(context.Background())
	handle.cancel = cancel
	go c.runTimer(timerCtx, snapshot.MatchID, startedAt, snapshot.Duration)

	c.notify.SendToUsers(playerIDs(snapshot), model.NewEvent(model.EventMatchStart, model.MatchStartPayload{
		MatchID:    snapshot.MatchID,
		StartedAt:  startedAt.Unix(),
		ServerTime: c.now().Unix(),
		Duration:   int64(snapshot.Duration / time.Second),
	}))
	logger.Info(ctx, "match started",
		zap.String("match_id", snapshot.MatchID),
		zap.Int("players", len(snapshot.Players)))
	return nil
}

// runTimer broadcasts the remaining time every second. Remaining is always
// recomputed from the start instant, never decremented, so a delayed tick
// can not stretch the match.
func (c *MatchCoordinator) runTimer(ctx context.Context, matchID string, startedAt time.Time, duration time.Duration) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := c.now().Sub(startedAt)
			remaining := duration - elapsed.Truncate(time.Second)
			if remaining <= 0 {
				// Clients see the clock hit zero before the match ends.
				c.broadcastTick(matchID, 0)
				c.expire(matchID)
				return
			}
			c.broadcastTick(matchID, int64(remaining/time.Second))
		}
	}
}

func (c *MatchCoordinator) broadcastTick(matchID string, remainingSec int64) {
	c.mu.Lock()
	users := make([]int64, 0, 4)
	for userID, id := range c.users {
		if id == matchID {
			users = append(users, userID)
		}
	}
	c.mu.Unlock()
	c.notify.SendToUsers(users, model.NewEvent(model.EventMatchTick, model.MatchTickPayload{
		MatchID:      matchID,
		RemainingSec: remainingSec,
	}))
}

// expire finalizes a match whose timer ran out.
func (c *MatchCoordinator) expire(matchID string) {
	handle := c.handle(matchID)
	if handle == nil {
		return
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()

	ctx := context.Background()
	snapshot, err := c.states.Get(ctx, matchID)
	if err != nil {
		logger.Error(ctx, "expire read snapshot failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	if snapshot.Status != model.StatusActive {
		return
	}
	c.finalize(ctx, snapshot)
}

// HandleSubmit validates a match submission and hands it to the judging
// pipeline. Only ACTIVE matches accept submissions, and in single-winner
// modes a locked problem rejects further attempts.
func (c *MatchCoordinator) HandleSubmit(ctx context.Context, matchID string, userID, problemID int64, languageID, sourceCode, idempotencyKey string) (judgesvc.SubmitResponse, error) {
	handle := c.handle(matchID)
	if handle == nil {
		return judgesvc.SubmitResponse{}, appErr.New(appErr.MatchNotFound)
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()

	snapshot, err := c.states.Get(ctx, matchID)
	if err != nil {
		return judgesvc.SubmitResponse{}, err
	}
	if snapshot.Status != model.StatusActive {
		return judgesvc.SubmitResponse{}, appErr.New(appErr.MatchNotActive)
	}
	if snapshot.Player(userID) == nil {
		return judgesvc.SubmitResponse{}, appErr.New(appErr.PlayerNotInMatch)
	}
	if !snapshot.HasProblem(problemID) {
		return judgesvc.SubmitResponse{}, appErr.New(appErr.ProblemNotInMatch)
	}
	if snapshot.Mode.Config().SingleWinner {
		locked, err := c.states.ProblemLocked(ctx, matchID, problemID)
		if err != nil {
			return judgesvc.SubmitResponse{}, err
		}
		if locked {
			return judgesvc.SubmitResponse{}, appErr.New(appErr.ProblemLocked)
		}
	}
	return c.intake.Submit(ctx, judgesvc.SubmitRequest{
		MatchID:        matchID,
		ProblemID:      problemID,
		UserID:         userID,
		LanguageID:     languageID,
		SourceCode:     sourceCode,
		IdempotencyKey: idempotencyKey,
		Scene:          judgemodel.SceneMatch,
	})
}

// ApplyVerdict folds one judged submission into the match state.
func (c *MatchCoordinator) ApplyVerdict(ctx context.Context, res judgemodel.JudgeResult) error {
	handle := c.handle(res.MatchID)
	if handle == nil {
		return appErr.New(appErr.MatchNotFound)
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()

	snapshot, err := c.states.Get(ctx, res.MatchID)
	if err != nil {
		return err
	}
	if snapshot.Status != model.StatusActive {
		logger.Info(ctx, "verdict after match end ignored",
			zap.String("match_id", res.MatchID),
			zap.String("submission_id", res.SubmissionID))
		return nil
	}
	player := snapshot.Player(res.UserID)
	if player == nil {
		return appErr.New(appErr.PlayerNotInMatch)
	}

	locked := false
	if res.Verdict == judgemodel.VerdictAccepted {
		locked, err = c.applyAccepted(ctx, snapshot, player, res)
		if err != nil {
			return err
		}
		if err := c.states.UpdatePlayers(ctx, snapshot); err != nil {
			return err
		}
	}

	c.notify.SendToUsers(playerIDs(snapshot), model.NewEvent(model.EventMatchUpdate, model.MatchUpdatePayload{
		MatchID:   res.MatchID,
		UserID:    res.UserID,
		ProblemID: res.ProblemID,
		Verdict:   string(res.Verdict),
		Locked:    locked,
		Players:   snapshot.Players,
	}))

	if c.shouldFinalize(ctx, snapshot) {
		c.finalize(ctx, snapshot)
	}
	return nil
}

// applyAccepted scores an accepted submission. In single-winner modes only
// the first solver of a problem scores; the lock claim is atomic so a
// concurrent double-accept yields exactly one winner.
func (c *MatchCoordinator) applyAccepted(ctx context.Context, snapshot *model.MatchSnapshot, player *model.PlayerState, res judgemodel.JudgeResult) (bool, error) {
	cfg := snapshot.Mode.Config()
	if cfg.SingleWinner {
		claimed, err := c.states.ClaimProblemLock(ctx, snapshot.MatchID, res.ProblemID, res.UserID)
		if err != nil {
			return false, err
		}
		if !claimed {
			return true, nil
		}
		ref := snapshot.Problem(res.ProblemID)
		difficulty := ""
		if ref != nil {
			difficulty = ref.Difficulty
		}
		player.Score += model.PointsForDifficulty(difficulty)
		if !player.Solved(res.ProblemID) {
			player.SolvedProblems = append(player.SolvedProblems, res.ProblemID)
		}
		return true, nil
	}

	// Code golf: track the shortest accepted solution, points come at
	// finalization from placement.
	if !player.Solved(res.ProblemID) {
		player.SolvedProblems = append(player.SolvedProblems, res.ProblemID)
	}
	if res.CodeLength > 0 && (player.BestLength == 0 || res.CodeLength < player.BestLength) {
		player.BestLength = res.CodeLength
	}
	return false, nil
}

// shouldFinalize checks early-end conditions: every problem locked
// (single-winner) or every player accepted (golf).
func (c *MatchCoordinator) shouldFinalize(ctx context.Context, snapshot *model.MatchSnapshot) bool {
	cfg := snapshot.Mode.Config()
	if cfg.SingleWinner {
		for _, problem := range snapshot.Problems {
			locked, err := c.states.ProblemLocked(ctx, snapshot.MatchID, problem.ID)
			if err != nil || !locked {
				return false
			}
		}
		return true
	}
	for i := range snapshot.Players {
		if snapshot.Players[i].BestLength == 0 {
			return false
		}
	}
	return true
}

// Connect replays the live match state to a (re)connecting player.
func (c *MatchCoordinator) Connect(ctx context.Context, userID int64) {
	matchID := c.matchFor(userID)
	if matchID == "" {
		return
	}
	handle := c.handle(matchID)
	if handle == nil {
		return
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()

	snapshot, err := c.states.Get(ctx, matchID)
	if err != nil {
		logger.Warn(ctx, "replay state read failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	cleared, err := c.states.ClearDisconnected(ctx, matchID, userID)
	if err != nil {
		logger.Warn(ctx, "clear disconnect flag failed", zap.String("match_id", matchID), zap.Error(err))
	}
	if cleared {
		c.notify.SendToUsers(playerIDs(snapshot), model.NewEvent(model.EventPlayerReconnected, model.PlayerPresencePayload{
			MatchID: matchID,
			UserID:  userID,
		}))
	}
	c.notify.SendToUser(userID, model.NewEvent(model.EventMatchState, model.MatchStatePayload{
		MatchID:      snapshot.MatchID,
		Mode:         snapshot.Mode,
		Status:       snapshot.Status,
		Problems:     snapshot.Problems,
		Players:      snapshot.Players,
		RemainingSec: int64(snapshot.Remaining(c.now()) / time.Second),
	}))
}

// Disconnect flags a player as gone and tells the others. The match keeps
// running; the grace period is advisory for the clients.
func (c *MatchCoordinator) Disconnect(ctx context.Context, userID int64) {
	matchID := c.matchFor(userID)
	if matchID == "" {
		return
	}
	handle := c.handle(matchID)
	if handle == nil {
		return
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()

	snapshot, err := c.states.Get(ctx, matchID)
	if err != nil || snapshot.Status.Terminal() {
		return
	}
	if err := c.states.SetDisconnected(ctx, matchID, userID, c.now()); err != nil {
		logger.Warn(ctx, "set disconnect flag failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	c.notify.SendToUsers(playerIDs(snapshot), model.NewEvent(model.EventPlayerDisconnected, model.PlayerPresencePayload{
		MatchID:  matchID,
		UserID:   userID,
		GraceSec: int64(snapshot.Mode.Config().DisconnectGrace / time.Second),
	}))
}

// finalize freezes the match, persists the outcome and hands placements to
// the rating engine. Caller holds the match mutex.
func (c *MatchCoordinator) finalize(ctx context.Context, snapshot *model.MatchSnapshot) {
	endedAt := c.now()
	snapshot.Status = model.StatusFinished
	assignScoresAndRanks(snapshot)

	if err := c.states.UpdatePlayers(ctx, snapshot); err != nil {
		logger.Error(ctx, "persist final players failed", zap.String("match_id", snapshot.MatchID), zap.Error(err))
	}
	if err := c.states.SetStatus(ctx, snapshot.MatchID, model.StatusFinished); err != nil {
		logger.Error(ctx, "persist final status failed", zap.String("match_id", snapshot.MatchID), zap.Error(err))
	}

	if err := c.finalizeDurable(ctx, snapshot, endedAt); err != nil {
		logger.Error(ctx, "durable finalize exhausted, match force-finished",
			zap.String("match_id", snapshot.MatchID), zap.Error(err))
	}

	placements := make([]rating.Placement, 0, len(snapshot.Players))
	for _, p := range snapshot.Players {
		placements = append(placements, rating.Placement{UserID: p.UserID, Rank: p.Rank})
	}
	if _, err := c.engine.ApplyMatch(ctx, snapshot.Mode.Config().PrimaryDimension, placements); err != nil {
		logger.Error(ctx, "rating update failed", zap.String("match_id", snapshot.MatchID), zap.Error(err))
	}

	c.notify.SendToUsers(playerIDs(snapshot), model.NewEvent(model.EventMatchEnd, model.MatchEndPayload{
		MatchID: snapshot.MatchID,
		Status:  model.StatusFinished,
		Players: snapshot.Players,
	}))
	c.release(snapshot)
	logger.Info(ctx, "match finished", zap.String("match_id", snapshot.MatchID))
}

func (c *MatchCoordinator) finalizeDurable(ctx context.Context, snapshot *model.MatchSnapshot, endedAt time.Time) error {
	var lastErr error
	backoff := finalizeBackoffBase
	for attempt := 0; attempt < finalizeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = c.store.Finalize(ctx, snapshot.MatchID, model.StatusFinished, snapshot.Players, endedAt)
		if lastErr == nil {
			return nil
		}
		logger.Warn(ctx, "durable finalize attempt failed",
			zap.String("match_id", snapshot.MatchID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return appErr.Wrap(lastErr, appErr.FinalizeFailed)
}

// release drops the in-process tracking for a finished match.
func (c *MatchCoordinator) release(snapshot *model.MatchSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handle, ok := c.matches[snapshot.MatchID]; ok {
		handle.cancel()
		delete(c.matches, snapshot.MatchID)
	}
	for _, p := range snapshot.Players {
		if c.users[p.UserID] == snapshot.MatchID {
			delete(c.users, p.UserID)
		}
	}
}

func (c *MatchCoordinator) matchFor(userID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[userID]
}

// assignScoresAndRanks computes final scores (golf placement points) and
// ranks by descending score, ties broken by original player order.
func assignScoresAndRanks(snapshot *model.MatchSnapshot) {
	if !snapshot.Mode.Config().SingleWinner {
		applyGolfPlacement(snapshot.Players)
	}
	order := make([]int, len(snapshot.Players))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return snapshot.Players[order[a]].Score > snapshot.Players[order[b]].Score
	})
	for rank, idx := range order {
		snapshot.Players[idx].Rank = rank + 1
	}
}

// applyGolfPlacement awards placement points by ascending best length.
// Players without an accepted solution place after everyone who solved.
func applyGolfPlacement(players []model.PlayerState) {
	order := make([]int, 0, len(players))
	for i := range players {
		if players[i].BestLength > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return players[order[a]].BestLength < players[order[b]].BestLength
	})
	for place, idx := range order {
		players[idx].Score = model.GolfPlacementPoints(place)
	}
}

func playerIDs(snapshot *model.MatchSnapshot) []int64 {
	ids := make([]int64, 0, len(snapshot.Players))
	for _, p := range snapshot.Players {
		ids = append(ids, p.UserID)
	}
	return ids
}
