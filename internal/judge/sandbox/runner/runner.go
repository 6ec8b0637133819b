// Package runner orchestrates compile and run workflows on top of the engine.
package runner

import (
	"context"
	"strings"

	"codearena/internal/judge/sandbox/engine"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/sandbox/spec"
)

// CompileRequest describes one compilation task.
type CompileRequest struct {
	SubmissionID string
	Language     profile.LanguageSpec
	RunSpec      spec.RunSpec
}

// RunRequest describes one execution task.
type RunRequest struct {
	SubmissionID string
	TestID       string
	Language     profile.LanguageSpec
	RunSpec      spec.RunSpec
}

// Runner executes compile and run tasks and maps raw results to verdicts.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error)
}

// DefaultRunner runs tasks through a sandbox engine.
type DefaultRunner struct {
	engine engine.Engine
}

// NewRunner creates a runner backed by the given engine.
func NewRunner(eng engine.Engine) *DefaultRunner {
	return &DefaultRunner{engine: eng}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	runRes, err := r.engine.Run(ctx, req.RunSpec)
	if err != nil {
		return result.CompileResult{}, err
	}
	log := runRes.Stderr
	if log == "" {
		log = runRes.Stdout
	}
	return result.CompileResult{
		OK:       runRes.ExitCode == 0 && !runRes.TimedOut,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
		Log:      strings.TrimSpace(log),
	}, nil
}

// Run executes one test case. VerdictAC here only means the process finished
// within its limits; output comparison happens in the judge layer and may
// still downgrade the verdict.
func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error) {
	runRes, err := r.engine.Run(ctx, req.RunSpec)
	if err != nil {
		return result.TestcaseResult{}, err
	}
	return result.TestcaseResult{
		TestID:   req.TestID,
		Verdict:  classify(runRes, req.RunSpec.Limits),
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
		OutputKB: runRes.OutputKB,
		ExitCode: runRes.ExitCode,
		Stdout:   runRes.Stdout,
		Stderr:   runRes.Stderr,
	}, nil
}

func classify(runRes result.RunResult, limits spec.ResourceLimit) result.Verdict {
	switch {
	case runRes.TimedOut || (limits.CPUTimeMs > 0 && runRes.TimeMs > limits.CPUTimeMs):
		return result.VerdictTLE
	case runRes.OomKilled || (limits.MemoryMB > 0 && runRes.MemoryKB > limits.MemoryMB*1024):
		return result.VerdictMLE
	case limits.OutputMB > 0 && runRes.OutputKB > limits.OutputMB*1024:
		return result.VerdictOLE
	case runRes.ExitCode != 0:
		return result.VerdictRE
	default:
		return result.VerdictAC
	}
}
