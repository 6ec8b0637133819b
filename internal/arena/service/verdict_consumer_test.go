package service

import (
	"context"
	"encoding/json"
	"testing"

	"codearena/internal/arena/model"
	"codearena/internal/common/mq"
	judgemodel "codearena/internal/judge/model"
)

func resultMessage(t *testing.T, res judgemodel.JudgeResult) *mq.Message {
	t.Helper()
	payload, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	msg := mq.NewMessage(payload)
	msg.ID = res.SubmissionID
	return msg
}

func TestVerdictConsumerPracticeResult(t *testing.T) {
	t.Parallel()
	notify := newRecordingNotifier()
	consumer := NewVerdictConsumer(NewMatchCoordinator(CoordinatorConfig{Notify: notify}), notify)

	res := judgemodel.JudgeResult{
		SubmissionID: "sub-1",
		ProblemID:    7,
		UserID:       3,
		Scene:        judgemodel.ScenePractice,
		Verdict:      judgemodel.VerdictAccepted,
		Passed:       5,
		Total:        5,
	}
	if err := consumer.HandleMessage(context.Background(), resultMessage(t, res)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	events := notify.events[3]
	if len(events) != 1 {
		t.Fatalf("expected 1 event for the submitter, got %d", len(events))
	}
	if events[0].Type != model.EventSubmissionResult {
		t.Fatalf("expected submission result event, got %s", events[0].Type)
	}
}

func TestVerdictConsumerDropsStaleMatchResult(t *testing.T) {
	t.Parallel()
	notify := newRecordingNotifier()
	consumer := NewVerdictConsumer(NewMatchCoordinator(CoordinatorConfig{Notify: notify}), notify)

	res := judgemodel.JudgeResult{
		SubmissionID: "sub-2",
		MatchID:      "gone",
		UserID:       3,
		Scene:        judgemodel.SceneMatch,
		Verdict:      judgemodel.VerdictAccepted,
	}
	if err := consumer.HandleMessage(context.Background(), resultMessage(t, res)); err != nil {
		t.Fatalf("expected stale verdict to be dropped, got %v", err)
	}
	if len(notify.events) != 0 {
		t.Fatalf("expected no events, got %+v", notify.events)
	}
}

func TestVerdictConsumerRejectsBadInput(t *testing.T) {
	t.Parallel()
	notify := newRecordingNotifier()
	consumer := NewVerdictConsumer(NewMatchCoordinator(CoordinatorConfig{Notify: notify}), notify)

	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
	if err := consumer.HandleMessage(context.Background(), mq.NewMessage([]byte("{oops"))); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if err := consumer.HandleMessage(context.Background(), resultMessage(t, judgemodel.JudgeResult{})); err == nil {
		t.Fatal("expected error for missing submission id")
	}
}
