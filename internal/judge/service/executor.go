package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/catalog"
	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/validator"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Executor consumes judge tasks, runs them in the sandbox and publishes
// the resulting verdicts.
type Executor struct {
	sandbox   sandbox.Service
	subs      repository.SubmissionRepository
	catalog   *catalog.Client
	publisher repository.ResultPublisher
	queue     mq.MessageQueue

	workRoot       string
	compileProfile string
	runProfile     string
	taskTimeout    time.Duration
	sem            chan struct{}

	retryTopic    string
	deadLetter    string
	poolRetryMax  int
	poolRetryBase time.Duration
	poolRetryMaxD time.Duration

	now func() time.Time
}

// ExecutorConfig holds executor dependencies and settings.
type ExecutorConfig struct {
	Sandbox        sandbox.Service
	Submissions    repository.SubmissionRepository
	Catalog        *catalog.Client
	Publisher      repository.ResultPublisher
	Queue          mq.MessageQueue
	WorkRoot       string
	CompileProfile string
	RunProfile     string
	TaskTimeout    time.Duration
	WorkerPoolSize int
	RetryTopic     string
	DeadLetter     string
	PoolRetryMax   int
	PoolRetryBase  time.Duration
	PoolRetryMaxD  time.Duration
}

// NewExecutor creates a judge executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox service is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog client is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("result publisher is required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	if cfg.CompileProfile == "" {
		cfg.CompileProfile = "compile"
	}
	if cfg.RunProfile == "" {
		cfg.RunProfile = "run"
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = model.TopicDeadLetter
	}
	return &Executor{
		sandbox:        cfg.Sandbox,
		subs:           cfg.Submissions,
		catalog:        cfg.Catalog,
		publisher:      cfg.Publisher,
		queue:          cfg.Queue,
		workRoot:       cfg.WorkRoot,
		compileProfile: cfg.CompileProfile,
		runProfile:     cfg.RunProfile,
		taskTimeout:    cfg.TaskTimeout,
		sem:            make(chan struct{}, poolSize),
		retryTopic:     cfg.RetryTopic,
		deadLetter:     cfg.DeadLetter,
		poolRetryMax:   cfg.PoolRetryMax,
		poolRetryBase:  cfg.PoolRetryBase,
		poolRetryMaxD:  cfg.PoolRetryMaxD,
		now:            time.Now,
	}, nil
}

// HandleMessage processes one judge task message.
func (e *Executor) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var task model.JudgeTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode judge task failed")
	}
	if task.SubmissionID == "" || task.ProblemID <= 0 || task.LanguageID == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("task missing required fields")
	}

	if !e.tryAcquireSlot() {
		return e.requeueForPoolFull(ctx, msg)
	}
	defer e.releaseSlot()

	taskCtx := ctx
	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	res, err := e.judge(taskCtx, task)
	if err != nil {
		return e.handleFailure(ctx, task, err)
	}
	return e.finish(ctx, res)
}

func (e *Executor) judge(ctx context.Context, task model.JudgeTask) (model.JudgeResult, error) {
	submission, err := e.subs.GetByID(ctx, nil, task.SubmissionID)
	if err != nil {
		return model.JudgeResult{}, err
	}
	lang, err := profile.Lookup(task.LanguageID)
	if err != nil {
		return model.JudgeResult{}, err
	}
	problem, err := e.catalog.GetProblem(ctx, task.ProblemID)
	if err != nil {
		return model.JudgeResult{}, err
	}
	cases, err := e.catalog.FetchTestCases(ctx, problem)
	if err != nil {
		return model.JudgeResult{}, err
	}

	limits := profile.RunLimits(problem.TimeLimitMS, problem.MemoryLimitMB)
	tests := make([]sandbox.TestcaseSpec, 0, len(cases))
	expected := make(map[string]string, len(cases))
	for i, tc := range cases {
		testID := strconv.Itoa(i + 1)
		tests = append(tests, sandbox.TestcaseSpec{
			TestID: testID,
			Input:  tc.Input,
			Limits: limits,
		})
		expected[testID] = tc.Expected
	}

	judgeRes, err := e.sandbox.Judge(ctx, sandbox.JudgeRequest{
		SubmissionID:   task.SubmissionID,
		Language:       lang,
		SourceCode:     submission.SourceCode,
		CompileProfile: e.compileProfile,
		RunProfile:     e.runProfile,
		WorkRoot:       e.workRoot,
		Tests:          tests,
		Checker: &answerChecker{
			validator: validator.ForProblem(problem),
			expected:  expected,
		},
	})
	if err != nil {
		return model.JudgeResult{}, appErr.Wrapf(err, appErr.SandboxFailed, "sandbox execution failed")
	}

	return model.JudgeResult{
		SubmissionID: task.SubmissionID,
		MatchID:      task.MatchID,
		ProblemID:    task.ProblemID,
		UserID:       task.UserID,
		Scene:        task.Scene,
		Verdict:      mapVerdict(judgeRes.Verdict),
		Passed:       judgeRes.Summary.Passed,
		Total:        judgeRes.Summary.Total,
		TimeMS:       judgeRes.Summary.MaxTimeMs,
		MemoryKB:     judgeRes.Summary.MaxMemoryKB,
		CodeLength:   submission.CodeLength,
		JudgedAt:     e.now().Unix(),
	}, nil
}

func (e *Executor) finish(ctx context.Context, res model.JudgeResult) error {
	if err := e.subs.UpdateResult(ctx, &res); err != nil {
		logger.Error(ctx, "persist judge result failed",
			zap.String("submission_id", res.SubmissionID), zap.Error(err))
	}
	if err := e.publisher.Publish(ctx, res); err != nil {
		return err
	}
	logger.Info(ctx, "submission judged",
		zap.String("submission_id", res.SubmissionID),
		zap.String("verdict", string(res.Verdict)),
		zap.Int("passed", res.Passed),
		zap.Int("total", res.Total),
		zap.Int64("time_ms", res.TimeMS))
	return nil
}

// handleFailure decides whether a failed task is retried or terminated.
// Permanent input errors get a SYSTEM_ERROR verdict and are swallowed so the
// message is not redelivered. Anything else is returned for redelivery
// without a verdict: the retry may still judge the submission, and a
// published SYSTEM_ERROR would be a second terminal verdict when it does.
func (e *Executor) handleFailure(ctx context.Context, task model.JudgeTask, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	logger.Error(ctx, "judge task failed",
		zap.String("submission_id", task.SubmissionID), zap.Error(err))

	switch appErr.GetCode(err) {
	case appErr.InvalidParams, appErr.ProblemNotFound, appErr.LanguageNotSupported,
		appErr.SubmissionNotFound, appErr.TestBundleCorrupted:
	default:
		return err
	}

	res := model.JudgeResult{
		SubmissionID: task.SubmissionID,
		MatchID:      task.MatchID,
		ProblemID:    task.ProblemID,
		UserID:       task.UserID,
		Scene:        task.Scene,
		Verdict:      model.VerdictSystemError,
		JudgedAt:     e.now().Unix(),
	}
	if finishErr := e.finish(ctx, res); finishErr != nil {
		logger.Warn(ctx, "publish failure verdict failed",
			zap.String("submission_id", task.SubmissionID), zap.Error(finishErr))
	}
	return nil
}

func mapVerdict(v result.Verdict) model.Verdict {
	switch v {
	case result.VerdictAC:
		return model.VerdictAccepted
	case result.VerdictWA:
		return model.VerdictWrongAnswer
	case result.VerdictTLE:
		return model.VerdictTimeLimitExceeded
	case result.VerdictMLE:
		return model.VerdictMemoryLimitExceeded
	case result.VerdictRE, result.VerdictOLE:
		return model.VerdictRuntimeError
	case result.VerdictCE:
		return model.VerdictCompilationError
	default:
		return model.VerdictSystemError
	}
}

// answerChecker adapts the problem's validator to the sandbox checker hook.
type answerChecker struct {
	validator validator.Validator
	expected  map[string]string
}

func (c *answerChecker) Check(testID string, output string) (bool, error) {
	want, ok := c.expected[testID]
	if !ok {
		return false, fmt.Errorf("no expected answer for test %s", testID)
	}
	return c.validator.Match(output, want), nil
}
