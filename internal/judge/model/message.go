package model

import "time"

// Kafka topics of the judging pipeline. Match tasks outweigh practice
// tasks at fetch time; results flow back on a single topic.
const (
	TopicMatchTasks    = "judge.tasks.match"
	TopicPracticeTasks = "judge.tasks.practice"
	TopicResults       = "judge.results"
	TopicDeadLetter    = "judge.tasks.dead"
)

// Fetch weights for the weighted consumer (match tasks first).
const (
	MatchFetchWeight    = 8
	PracticeFetchWeight = 1
)

// Scene distinguishes where a submission came from.
type Scene string

const (
	SceneMatch    Scene = "match"
	ScenePractice Scene = "practice"
)

// Verdict is the judge's classification of a submission.
type Verdict string

const (
	VerdictPending             Verdict = "PENDING"
	VerdictAccepted            Verdict = "ACCEPTED"
	VerdictWrongAnswer         Verdict = "WRONG_ANSWER"
	VerdictTimeLimitExceeded   Verdict = "TIME_LIMIT_EXCEEDED"
	VerdictMemoryLimitExceeded Verdict = "MEMORY_LIMIT_EXCEEDED"
	VerdictRuntimeError        Verdict = "RUNTIME_ERROR"
	VerdictCompilationError    Verdict = "COMPILATION_ERROR"
	VerdictSystemError         Verdict = "SYSTEM_ERROR"
)

// Terminal reports whether the verdict ends the submission's lifecycle.
func (v Verdict) Terminal() bool {
	return v != VerdictPending
}

// JudgeTask is the Kafka payload dispatched to the executor.
type JudgeTask struct {
	SubmissionID string `json:"submission_id"`
	MatchID      string `json:"match_id,omitempty"`
	ProblemID    int64  `json:"problem_id"`
	UserID       int64  `json:"user_id"`
	LanguageID   string `json:"language_id"`
	Scene        Scene  `json:"scene"`
	SubmittedAt  int64  `json:"submitted_at"`
}

// JudgeResult is the Kafka payload published after a task is judged.
type JudgeResult struct {
	SubmissionID string  `json:"submission_id"`
	MatchID      string  `json:"match_id,omitempty"`
	ProblemID    int64   `json:"problem_id"`
	UserID       int64   `json:"user_id"`
	Scene        Scene   `json:"scene"`
	Verdict      Verdict `json:"verdict"`
	Passed       int     `json:"passed"`
	Total        int     `json:"total"`
	TimeMS       int64   `json:"time_ms"`
	MemoryKB     int64   `json:"memory_kb"`
	CodeLength   int     `json:"code_length"`
	JudgedAt     int64   `json:"judged_at"`
}

// JudgedTime returns the judged-at instant.
func (r *JudgeResult) JudgedTime() time.Time {
	return time.Unix(r.JudgedAt, 0).UTC()
}
