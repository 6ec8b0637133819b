// Package result defines sandbox execution results and verdict mapping.
package result

// Verdict represents the outcome of one sandbox execution.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictOLE Verdict = "OLE"
	VerdictRE  Verdict = "RE"
	VerdictCE  Verdict = "CE"
	VerdictSE  Verdict = "SE"
)

// RunResult captures raw sandbox execution data for a single process.
type RunResult struct {
	ExitCode   int
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	OomKilled  bool
	TimedOut   bool
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	MemoryKB int64
	Log      string
}

// TestcaseResult contains per-testcase execution outcomes.
type TestcaseResult struct {
	TestID   string
	Verdict  Verdict
	TimeMs   int64
	MemoryKB int64
	OutputKB int64
	ExitCode int
	Stdout   string
	Stderr   string
}

// SummaryStat captures aggregate statistics across testcases.
type SummaryStat struct {
	MaxTimeMs    int64
	MaxMemoryKB  int64
	Passed       int
	Total        int
	FailedTestID string
}

// JudgeResult is the unified response structure for a submission.
type JudgeResult struct {
	SubmissionID string
	Verdict      Verdict
	Compile      *CompileResult
	Tests        []TestcaseResult
	Summary      SummaryStat
}
