package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
	"codearena/internal/judge/sandbox/profile"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxSourceBytes is the hard cap on submitted source size.
	MaxSourceBytes = 64 * 1024

	submitCooldown = 2 * time.Second
	dedupTTL       = 10 * time.Second

	dedupKeyPrefix = "submit:dedup:"
	rateKeyPrefix  = "submit:rate:"
)

// SubmitRequest is one incoming submission. IdempotencyKey is a
// client-chosen token; retries of the same logical submission reuse it.
type SubmitRequest struct {
	MatchID        string
	ProblemID      int64
	UserID         int64
	LanguageID     string
	SourceCode     string
	IdempotencyKey string
	Scene          model.Scene
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	SubmissionID string `json:"submissionId"`
	CodeLength   int    `json:"codeLength"`
}

// IntakeService validates submissions and hands them to the judging pipeline.
type IntakeService struct {
	repo  repository.SubmissionRepository
	cache cache.Cache
	queue mq.MessageQueue
	now   func() time.Time
}

// NewIntakeService creates an intake service.
func NewIntakeService(repo repository.SubmissionRepository, cacheClient cache.Cache, queue mq.MessageQueue) *IntakeService {
	return &IntakeService{
		repo:  repo,
		cache: cacheClient,
		queue: queue,
		now:   time.Now,
	}
}

// Submit validates, persists and enqueues one submission.
// Duplicate bursts and rapid resubmits are rejected before any row is written.
func (s *IntakeService) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if req.UserID <= 0 {
		return SubmitResponse{}, appErr.ValidationError("user_id", "required")
	}
	if req.ProblemID <= 0 {
		return SubmitResponse{}, appErr.ValidationError("problem_id", "required")
	}
	if !profile.Supported(req.LanguageID) {
		return SubmitResponse{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", req.LanguageID)
	}
	if len(req.SourceCode) > MaxSourceBytes {
		return SubmitResponse{}, appErr.New(appErr.CodeTooLarge).
			WithDetail("max_bytes", MaxSourceBytes).
			WithDetail("got_bytes", len(req.SourceCode))
	}
	if strings.TrimSpace(req.SourceCode) == "" {
		return SubmitResponse{}, appErr.ValidationError("source_code", "required")
	}
	if req.Scene == "" {
		req.Scene = model.ScenePractice
	}

	source := NormalizeSource(req.SourceCode)
	codeLength := len(source)

	rateKey := fmt.Sprintf("%s%d:%d", rateKeyPrefix, req.UserID, req.ProblemID)
	ok, err := s.cache.SetNX(ctx, rateKey, "1", submitCooldown)
	if err != nil {
		return SubmitResponse{}, appErr.Wrapf(err, appErr.CacheError, "submit rate check failed")
	}
	if !ok {
		return SubmitResponse{}, appErr.New(appErr.SubmitTooFrequently)
	}

	dedupKey := dedupKeyPrefix + dedupToken(req, source)
	ok, err = s.cache.SetNX(ctx, dedupKey, "1", dedupTTL)
	if err != nil {
		return SubmitResponse{}, appErr.Wrapf(err, appErr.CacheError, "submit dedup check failed")
	}
	if !ok {
		return SubmitResponse{}, appErr.New(appErr.DuplicateSubmission)
	}

	submissionID := uuid.NewString()
	submission := &repository.Submission{
		SubmissionID: submissionID,
		MatchID:      req.MatchID,
		ProblemID:    req.ProblemID,
		UserID:       req.UserID,
		LanguageID:   req.LanguageID,
		SourceCode:   source,
		Scene:        string(req.Scene),
		Verdict:      string(model.VerdictPending),
		CodeLength:   codeLength,
	}
	if err := s.repo.Create(ctx, nil, submission); err != nil {
		s.releaseDedup(ctx, dedupKey)
		return SubmitResponse{}, err
	}

	task := model.JudgeTask{
		SubmissionID: submissionID,
		MatchID:      req.MatchID,
		ProblemID:    req.ProblemID,
		UserID:       req.UserID,
		LanguageID:   req.LanguageID,
		Scene:        req.Scene,
		SubmittedAt:  s.now().Unix(),
	}
	if err := s.publishTask(ctx, task); err != nil {
		s.releaseDedup(ctx, dedupKey)
		return SubmitResponse{}, err
	}

	logger.Info(ctx, "submission accepted",
		zap.String("submission_id", submissionID),
		zap.Int64("user_id", req.UserID),
		zap.Int64("problem_id", req.ProblemID),
		zap.String("scene", string(req.Scene)),
		zap.Int("code_length", codeLength))
	return SubmitResponse{SubmissionID: submissionID, CodeLength: codeLength}, nil
}

func (s *IntakeService) publishTask(ctx context.Context, task model.JudgeTask) error {
	topic := model.TopicPracticeTasks
	if task.Scene == model.SceneMatch {
		topic = model.TopicMatchTasks
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode judge task failed")
	}
	message := mq.NewMessage(payload)
	message.ID = task.SubmissionID
	if err := s.queue.Publish(ctx, topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "enqueue judge task failed")
	}
	return nil
}

func (s *IntakeService) releaseDedup(ctx context.Context, key string) {
	if err := s.cache.Del(ctx, key); err != nil {
		logger.Warn(ctx, "release dedup key failed", zap.String("key", key), zap.Error(err))
	}
}

// NormalizeSource unifies line endings and drops one trailing newline so
// code length is stable across editors. Used for golf scoring.
func NormalizeSource(source string) string {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.TrimSuffix(source, "\n")
	return source
}

// dedupToken keys the dedup window on the client's idempotency token,
// scoped per user. Clients that send none fall back to a content hash.
func dedupToken(req SubmitRequest, source string) string {
	if req.IdempotencyKey != "" {
		return fmt.Sprintf("%d:%s", req.UserID, req.IdempotencyKey)
	}
	return submissionFingerprint(req, source)
}

func submissionFingerprint(req SubmitRequest, source string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|", req.UserID, req.ProblemID, req.MatchID)
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}
