package service

import (
	"context"
	"encoding/json"

	"codearena/internal/arena/model"
	"codearena/internal/common/mq"
	judgemodel "codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// VerdictConsumer routes judge results: match-scene verdicts feed the
// coordinator, practice-scene verdicts go straight to the submitter.
type VerdictConsumer struct {
	coordinator *MatchCoordinator
	notify      Notifier
}

// NewVerdictConsumer creates the consumer.
func NewVerdictConsumer(coordinator *MatchCoordinator, notify Notifier) *VerdictConsumer {
	return &VerdictConsumer{coordinator: coordinator, notify: notify}
}

// HandleMessage processes one judge result message.
func (v *VerdictConsumer) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var res judgemodel.JudgeResult
	if err := json.Unmarshal(msg.Body, &res); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode judge result failed")
	}
	if res.SubmissionID == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("result missing submission id")
	}

	if res.Scene == judgemodel.SceneMatch && res.MatchID != "" {
		if err := v.coordinator.ApplyVerdict(ctx, res); err != nil {
			// A result for an already-released match is stale, not a
			// delivery failure.
			if appErr.Is(err, appErr.MatchNotFound) {
				logger.Info(ctx, "verdict for unknown match dropped",
					zap.String("match_id", res.MatchID),
					zap.String("submission_id", res.SubmissionID))
				return nil
			}
			return err
		}
		return nil
	}

	v.notify.SendToUser(res.UserID, model.NewEvent(model.EventSubmissionResult, model.SubmissionResultPayload{
		SubmissionID: res.SubmissionID,
		ProblemID:    res.ProblemID,
		Verdict:      string(res.Verdict),
		Passed:       res.Passed,
		Total:        res.Total,
		TimeMS:       res.TimeMS,
		MemoryKB:     res.MemoryKB,
	}))
	return nil
}
