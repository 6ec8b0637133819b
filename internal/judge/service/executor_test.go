package service

import (
	"context"
	"encoding/json"
	"testing"

	"codearena/internal/catalog"
	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/validator"
	appErr "codearena/pkg/errors"
)

func mqMessage(t *testing.T, task model.JudgeTask) *mq.Message {
	t.Helper()
	payload, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	msg := mq.NewMessage(payload)
	msg.ID = task.SubmissionID
	return msg
}

func TestMapVerdict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   result.Verdict
		want model.Verdict
	}{
		{in: result.VerdictAC, want: model.VerdictAccepted},
		{in: result.VerdictWA, want: model.VerdictWrongAnswer},
		{in: result.VerdictTLE, want: model.VerdictTimeLimitExceeded},
		{in: result.VerdictMLE, want: model.VerdictMemoryLimitExceeded},
		{in: result.VerdictRE, want: model.VerdictRuntimeError},
		{in: result.VerdictOLE, want: model.VerdictRuntimeError},
		{in: result.VerdictCE, want: model.VerdictCompilationError},
	}
	for _, tt := range tests {
		if got := mapVerdict(tt.in); got != tt.want {
			t.Fatalf("mapVerdict(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAnswerChecker(t *testing.T) {
	t.Parallel()
	checker := &answerChecker{
		validator: validator.Exact{},
		expected:  map[string]string{"1": "42\n"},
	}

	ok, err := checker.Check("1", "42")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !ok {
		t.Fatal("expected normalized output to match")
	}

	ok, err = checker.Check("1", "41")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if ok {
		t.Fatal("expected wrong output to be rejected")
	}

	if _, err := checker.Check("2", "42"); err == nil {
		t.Fatal("expected error for unknown test id")
	}
}

type stubSandbox struct{}

func (stubSandbox) Judge(ctx context.Context, req sandbox.JudgeRequest) (result.JudgeResult, error) {
	return result.JudgeResult{}, nil
}

func (stubSandbox) Kill(ctx context.Context, submissionID string) error { return nil }

type capturePublisher struct {
	results []model.JudgeResult
}

func (p *capturePublisher) Publish(ctx context.Context, res model.JudgeResult) error {
	p.results = append(p.results, res)
	return nil
}

func newTestExecutor(t *testing.T, queue *fakeQueue) (*Executor, *capturePublisher) {
	t.Helper()
	publisher := &capturePublisher{}
	exec, err := NewExecutor(ExecutorConfig{
		Sandbox:        stubSandbox{},
		Submissions:    &fakeSubmissionRepo{},
		Catalog:        &catalog.Client{},
		Publisher:      publisher,
		Queue:          queue,
		WorkRoot:       t.TempDir(),
		WorkerPoolSize: 1,
		RetryTopic:     "judge.tasks.retry",
		PoolRetryMax:   3,
	})
	if err != nil {
		t.Fatalf("create executor: %v", err)
	}
	return exec, publisher
}

func TestHandleMessageRejectsBadPayload(t *testing.T) {
	t.Parallel()
	exec, _ := newTestExecutor(t, &fakeQueue{})

	msg := mqMessage(t, model.JudgeTask{})
	if err := exec.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for task missing required fields")
	}

	if err := exec.HandleMessage(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}

	garbage := mq.NewMessage([]byte("{not json"))
	if err := exec.HandleMessage(context.Background(), garbage); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestHandleFailureRetryableLeavesVerdictOpen(t *testing.T) {
	t.Parallel()
	exec, publisher := newTestExecutor(t, &fakeQueue{})
	task := model.JudgeTask{SubmissionID: "sub-1", MatchID: "m-1", ProblemID: 1, UserID: 2}

	err := exec.handleFailure(context.Background(), task, appErr.New(appErr.DatabaseError))
	if err == nil {
		t.Fatal("expected a retryable failure to be returned for redelivery")
	}
	if len(publisher.results) != 0 {
		t.Fatalf("expected no verdict before redelivery, got %+v", publisher.results)
	}
}

func TestHandleFailurePermanentPublishesSystemError(t *testing.T) {
	t.Parallel()
	exec, publisher := newTestExecutor(t, &fakeQueue{})
	task := model.JudgeTask{SubmissionID: "sub-1", MatchID: "m-1", ProblemID: 1, UserID: 2}

	if err := exec.handleFailure(context.Background(), task, appErr.New(appErr.TestBundleCorrupted)); err != nil {
		t.Fatalf("expected a permanent failure to be swallowed, got %v", err)
	}
	if len(publisher.results) != 1 {
		t.Fatalf("expected 1 terminal verdict, got %d", len(publisher.results))
	}
	if got := publisher.results[0].Verdict; got != model.VerdictSystemError {
		t.Fatalf("expected SYSTEM_ERROR, got %s", got)
	}
}

func TestHandleMessageRequeuesWhenPoolFull(t *testing.T) {
	t.Parallel()
	queue := &fakeQueue{}
	exec, _ := newTestExecutor(t, queue)

	// Occupy the only worker slot so the next task finds the pool full.
	exec.sem <- struct{}{}
	defer func() { <-exec.sem }()

	msg := mqMessage(t, model.JudgeTask{SubmissionID: "sub-1", ProblemID: 1, LanguageID: "go"})
	if err := exec.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("expected requeue instead of error, got %v", err)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected 1 requeued message, got %d", len(queue.published))
	}
	if got := queue.published[0].topic; got != "judge.tasks.retry" {
		t.Fatalf("expected retry topic, got %q", got)
	}
}
