// Package sandbox is the public entrypoint used by the judge service.
// It prepares a per-submission workspace, compiles when the language
// requires it, and runs every test case to completion.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"codearena/internal/judge/sandbox/engine"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/sandbox/runner"
	"codearena/internal/judge/sandbox/spec"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Service is the high-level sandbox entrypoint used by the judge layer.
type Service interface {
	Judge(ctx context.Context, req JudgeRequest) (result.JudgeResult, error)
	Kill(ctx context.Context, submissionID string) error
}

// OutputChecker decides whether a completed run produced the right answer.
type OutputChecker interface {
	Check(testID string, output string) (bool, error)
}

// TestcaseSpec describes one test case input and its limits.
type TestcaseSpec struct {
	TestID string
	Input  string
	Limits spec.ResourceLimit
}

// JudgeRequest contains all data needed to execute one submission.
type JudgeRequest struct {
	SubmissionID string
	Language     profile.LanguageSpec
	SourceCode   string

	// CompileProfile and RunProfile name isolation profiles known to the
	// engine's resolver. CompileProfile is ignored for interpreted languages.
	CompileProfile string
	RunProfile     string

	// WorkRoot is the host path used to create the per-submission workspace.
	WorkRoot string

	Tests   []TestcaseSpec
	Checker OutputChecker
}

type service struct {
	engine engine.Engine
	runner runner.Runner
}

// New creates a sandbox service on top of the given engine.
func New(eng engine.Engine) Service {
	return &service{
		engine: eng,
		runner: runner.NewRunner(eng),
	}
}

func (s *service) Judge(ctx context.Context, req JudgeRequest) (result.JudgeResult, error) {
	if req.SubmissionID == "" {
		return result.JudgeResult{}, fmt.Errorf("submission id is required")
	}
	if len(req.Tests) == 0 {
		return result.JudgeResult{}, fmt.Errorf("at least one test case is required")
	}

	workDir := filepath.Join(req.WorkRoot, req.SubmissionID)
	if err := os.MkdirAll(workDir, 0750); err != nil {
		return result.JudgeResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn(ctx, "workspace cleanup failed", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	sourcePath := filepath.Join(workDir, req.Language.SourceFile)
	if err := os.WriteFile(sourcePath, []byte(req.SourceCode), 0640); err != nil {
		return result.JudgeResult{}, fmt.Errorf("write source: %w", err)
	}

	out := result.JudgeResult{SubmissionID: req.SubmissionID}

	if req.Language.CompileEnabled {
		compileRes, err := s.compile(ctx, req, workDir)
		if err != nil {
			return result.JudgeResult{}, err
		}
		out.Compile = &compileRes
		if !compileRes.OK {
			out.Verdict = result.VerdictCE
			out.Summary.Total = len(req.Tests)
			return out, nil
		}
	}

	out.Tests = make([]result.TestcaseResult, 0, len(req.Tests))
	out.Summary.Total = len(req.Tests)
	for _, test := range req.Tests {
		testRes, err := s.runTest(ctx, req, workDir, test)
		if err != nil {
			return result.JudgeResult{}, err
		}
		if testRes.Verdict == result.VerdictAC && req.Checker != nil {
			ok, err := req.Checker.Check(test.TestID, testRes.Stdout)
			if err != nil {
				testRes.Verdict = result.VerdictSE
			} else if !ok {
				testRes.Verdict = result.VerdictWA
			}
		}
		out.Tests = append(out.Tests, testRes)
		if testRes.Verdict == result.VerdictAC {
			out.Summary.Passed++
		} else if out.Summary.FailedTestID == "" {
			out.Summary.FailedTestID = test.TestID
			out.Verdict = testRes.Verdict
		}
		if testRes.TimeMs > out.Summary.MaxTimeMs {
			out.Summary.MaxTimeMs = testRes.TimeMs
		}
		if testRes.MemoryKB > out.Summary.MaxMemoryKB {
			out.Summary.MaxMemoryKB = testRes.MemoryKB
		}
	}
	if out.Verdict == "" {
		out.Verdict = result.VerdictAC
	}
	return out, nil
}

func (s *service) compile(ctx context.Context, req JudgeRequest, workDir string) (result.CompileResult, error) {
	compileReq := runner.CompileRequest{
		SubmissionID: req.SubmissionID,
		Language:     req.Language,
		RunSpec: spec.RunSpec{
			SubmissionID: req.SubmissionID,
			TestID:       "compile",
			WorkDir:      workDir,
			Cmd:          req.Language.CompileCmd,
			StdoutPath:   filepath.Join(workDir, "compile.out"),
			StderrPath:   filepath.Join(workDir, "compile.err"),
			Profile:      req.CompileProfile,
			Limits:       profile.CompileLimits(),
		},
	}
	return s.runner.Compile(ctx, compileReq)
}

func (s *service) runTest(ctx context.Context, req JudgeRequest, workDir string, test TestcaseSpec) (result.TestcaseResult, error) {
	inputPath := filepath.Join(workDir, test.TestID+".in")
	if err := os.WriteFile(inputPath, []byte(test.Input), 0640); err != nil {
		return result.TestcaseResult{}, fmt.Errorf("write test input: %w", err)
	}
	runReq := runner.RunRequest{
		SubmissionID: req.SubmissionID,
		TestID:       test.TestID,
		Language:     req.Language,
		RunSpec: spec.RunSpec{
			SubmissionID: req.SubmissionID,
			TestID:       test.TestID,
			WorkDir:      workDir,
			Cmd:          req.Language.RunCmd,
			StdinPath:    inputPath,
			StdoutPath:   filepath.Join(workDir, test.TestID+".out"),
			StderrPath:   filepath.Join(workDir, test.TestID+".err"),
			Profile:      req.RunProfile,
			Limits:       test.Limits,
		},
	}
	return s.runner.Run(ctx, runReq)
}

func (s *service) Kill(ctx context.Context, submissionID string) error {
	return s.engine.KillSubmission(ctx, submissionID)
}
