package service

import (
	"context"
	"encoding/json"

	"codearena/internal/arena/model"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Inbound client message types.
const (
	msgQueueJoin   = "queue:join"
	msgQueueLeave  = "queue:leave"
	msgMatchReady  = "match:ready"
	msgMatchSubmit = "match:submit"
)

type queueMessage struct {
	Mode string `json:"mode"`
}

type readyMessage struct {
	MatchID string `json:"matchId"`
}

type submitMessage struct {
	MatchID        string `json:"matchId"`
	ProblemID      int64  `json:"problemId"`
	LanguageID     string `json:"languageId"`
	SourceCode     string `json:"sourceCode"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Gateway dispatches websocket traffic to the arena services.
type Gateway struct {
	matchmaking *MatchmakingService
	coordinator *MatchCoordinator
	notify      Notifier
}

// NewGateway creates the websocket dispatch layer.
func NewGateway(matchmaking *MatchmakingService, coordinator *MatchCoordinator, notify Notifier) *Gateway {
	return &Gateway{matchmaking: matchmaking, coordinator: coordinator, notify: notify}
}

// HandleConnect replays live match state to a player who (re)connects.
func (g *Gateway) HandleConnect(ctx context.Context, userID int64) {
	g.coordinator.Connect(ctx, userID)
}

// HandleDisconnect flags the player's match, if any.
func (g *Gateway) HandleDisconnect(ctx context.Context, userID int64) {
	g.coordinator.Disconnect(ctx, userID)
}

// HandleMessage routes one inbound message. Failures go back to the sender
// as coded error events; the connection stays up.
func (g *Gateway) HandleMessage(ctx context.Context, userID int64, msgType string, payload json.RawMessage) {
	var err error
	switch msgType {
	case msgQueueJoin:
		err = g.queueJoin(ctx, userID, payload)
	case msgQueueLeave:
		err = g.queueLeave(ctx, userID, payload)
	case msgMatchReady:
		err = g.matchReady(ctx, userID, payload)
	case msgMatchSubmit:
		err = g.matchSubmit(ctx, userID, payload)
	default:
		err = appErr.New(appErr.InvalidParams).WithMessagef("unknown message type %q", msgType)
	}
	if err != nil {
		g.sendError(ctx, userID, err)
	}
}

func (g *Gateway) queueJoin(ctx context.Context, userID int64, payload json.RawMessage) error {
	var msg queueMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode queue join failed")
	}
	mode, err := model.ParseMode(msg.Mode)
	if err != nil {
		return err
	}
	_, err = g.matchmaking.Join(ctx, userID, mode)
	return err
}

func (g *Gateway) queueLeave(ctx context.Context, userID int64, payload json.RawMessage) error {
	var msg queueMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode queue leave failed")
	}
	mode, err := model.ParseMode(msg.Mode)
	if err != nil {
		return err
	}
	return g.matchmaking.Leave(ctx, userID, mode)
}

func (g *Gateway) matchReady(ctx context.Context, userID int64, payload json.RawMessage) error {
	var msg readyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode ready failed")
	}
	if msg.MatchID == "" {
		return appErr.ValidationError("matchId", "required")
	}
	return g.coordinator.Ready(ctx, msg.MatchID, userID)
}

func (g *Gateway) matchSubmit(ctx context.Context, userID int64, payload json.RawMessage) error {
	var msg submitMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode submit failed")
	}
	if msg.MatchID == "" {
		return appErr.ValidationError("matchId", "required")
	}
	_, err := g.coordinator.HandleSubmit(ctx, msg.MatchID, userID, msg.ProblemID, msg.LanguageID, msg.SourceCode, msg.IdempotencyKey)
	return err
}

func (g *Gateway) sendError(ctx context.Context, userID int64, err error) {
	code := appErr.GetCode(err)
	g.notify.SendToUser(userID, model.NewEvent(model.EventError, model.ErrorPayload{
		Code:    int(code),
		Message: code.Message(),
	}))
	logger.Debug(ctx, "client request rejected", zap.Int64("user_id", userID), zap.Error(err))
}
