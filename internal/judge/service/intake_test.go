package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
	appErr "codearena/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

type fakeSubmissionRepo struct {
	created []*repository.Submission
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, tx db.Transaction, submission *repository.Submission) error {
	f.created = append(f.created, submission)
	return nil
}

func (f *fakeSubmissionRepo) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*repository.Submission, error) {
	for _, s := range f.created {
		if s.SubmissionID == submissionID {
			return s, nil
		}
	}
	return nil, appErr.New(appErr.SubmissionNotFound)
}

func (f *fakeSubmissionRepo) UpdateResult(ctx context.Context, res *model.JudgeResult) error {
	return nil
}

func newTestIntake(t *testing.T) (*IntakeService, *fakeSubmissionRepo, *fakeQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })
	repo := &fakeSubmissionRepo{}
	queue := &fakeQueue{}
	return NewIntakeService(repo, cacheClient, queue), repo, queue, mr
}

func TestSubmitPracticeFlow(t *testing.T) {
	intake, repo, queue, _ := newTestIntake(t)

	resp, err := intake.Submit(context.Background(), SubmitRequest{
		ProblemID:  42,
		UserID:     7,
		LanguageID: "python",
		SourceCode: "print(1)\r\n",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if resp.SubmissionID == "" {
		t.Fatal("expected a submission id")
	}
	if resp.CodeLength != len("print(1)") {
		t.Fatalf("expected normalized code length %d, got %d", len("print(1)"), resp.CodeLength)
	}

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 record, got %d", len(repo.created))
	}
	sub := repo.created[0]
	if sub.Verdict != string(model.VerdictPending) {
		t.Fatalf("expected pending verdict, got %q", sub.Verdict)
	}
	if sub.Scene != string(model.ScenePractice) {
		t.Fatalf("expected practice scene, got %q", sub.Scene)
	}

	if len(queue.published) != 1 {
		t.Fatalf("expected 1 published task, got %d", len(queue.published))
	}
	got := queue.published[0]
	if got.topic != model.TopicPracticeTasks {
		t.Fatalf("expected practice topic, got %q", got.topic)
	}
	if got.msg.ID != resp.SubmissionID {
		t.Fatalf("expected message id %q, got %q", resp.SubmissionID, got.msg.ID)
	}
	var task model.JudgeTask
	if err := json.Unmarshal(got.msg.Body, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.SubmissionID != resp.SubmissionID || task.ProblemID != 42 || task.UserID != 7 {
		t.Fatalf("unexpected task payload: %+v", task)
	}
}

func TestSubmitMatchRoutesToMatchTopic(t *testing.T) {
	intake, _, queue, _ := newTestIntake(t)

	_, err := intake.Submit(context.Background(), SubmitRequest{
		MatchID:    "m-1",
		ProblemID:  1,
		UserID:     9,
		LanguageID: "cpp",
		SourceCode: "int main() {}",
		Scene:      model.SceneMatch,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected 1 published task, got %d", len(queue.published))
	}
	if got := queue.published[0].topic; got != model.TopicMatchTasks {
		t.Fatalf("expected match topic, got %q", got)
	}
}

func TestSubmitCooldown(t *testing.T) {
	intake, _, _, _ := newTestIntake(t)

	first := SubmitRequest{ProblemID: 5, UserID: 3, LanguageID: "go", SourceCode: "package main"}
	if _, err := intake.Submit(context.Background(), first); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	second := first
	second.SourceCode = "package main\nfunc main() {}"
	_, err := intake.Submit(context.Background(), second)
	if !appErr.Is(err, appErr.SubmitTooFrequently) {
		t.Fatalf("expected SubmitTooFrequently, got %v", err)
	}
}

func TestSubmitDuplicate(t *testing.T) {
	intake, _, _, mr := newTestIntake(t)

	req := SubmitRequest{ProblemID: 5, UserID: 3, LanguageID: "go", SourceCode: "package main"}
	if _, err := intake.Submit(context.Background(), req); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// Let the cooldown window pass but keep the dedup window alive.
	mr.FastForward(submitCooldown + time.Second)

	_, err := intake.Submit(context.Background(), req)
	if !appErr.Is(err, appErr.DuplicateSubmission) {
		t.Fatalf("expected DuplicateSubmission, got %v", err)
	}
}

func TestSubmitIdempotencyKey(t *testing.T) {
	intake, _, _, mr := newTestIntake(t)

	req := SubmitRequest{ProblemID: 5, UserID: 3, LanguageID: "go", SourceCode: "package main", IdempotencyKey: "k-1"}
	if _, err := intake.Submit(context.Background(), req); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// Same token, different body: still the same logical submission.
	mr.FastForward(submitCooldown + time.Second)
	retry := req
	retry.SourceCode = "package main\nfunc main() {}"
	_, err := intake.Submit(context.Background(), retry)
	if !appErr.Is(err, appErr.DuplicateSubmission) {
		t.Fatalf("expected DuplicateSubmission for reused token, got %v", err)
	}

	// A fresh token with the same body is a new submission.
	mr.FastForward(submitCooldown + time.Second)
	fresh := req
	fresh.IdempotencyKey = "k-2"
	if _, err := intake.Submit(context.Background(), fresh); err != nil {
		t.Fatalf("expected fresh token to be accepted, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitRequest
		code appErr.ErrorCode
	}{
		{
			name: "missing user",
			req:  SubmitRequest{ProblemID: 1, LanguageID: "go", SourceCode: "x"},
			code: appErr.ValidationFailed,
		},
		{
			name: "missing problem",
			req:  SubmitRequest{UserID: 1, LanguageID: "go", SourceCode: "x"},
			code: appErr.ValidationFailed,
		},
		{
			name: "unsupported language",
			req:  SubmitRequest{UserID: 1, ProblemID: 1, LanguageID: "cobol", SourceCode: "x"},
			code: appErr.LanguageNotSupported,
		},
		{
			name: "blank source",
			req:  SubmitRequest{UserID: 1, ProblemID: 1, LanguageID: "go", SourceCode: "   \n"},
			code: appErr.ValidationFailed,
		},
		{
			name: "oversized source",
			req:  SubmitRequest{UserID: 1, ProblemID: 1, LanguageID: "go", SourceCode: strings.Repeat("a", MaxSourceBytes+1)},
			code: appErr.CodeTooLarge,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			intake, _, _, _ := newTestIntake(t)
			_, err := intake.Submit(context.Background(), tt.req)
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestNormalizeSource(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "crlf to lf", in: "a\r\nb\r\n", want: "a\nb"},
		{name: "single trailing newline dropped", in: "a\n", want: "a"},
		{name: "only one trailing newline dropped", in: "a\n\n", want: "a\n"},
		{name: "no trailing newline unchanged", in: "a", want: "a"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeSource(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
