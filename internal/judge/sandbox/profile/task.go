package profile

import "codearena/internal/judge/sandbox/spec"

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
)

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	LanguageID     string
	TaskType       TaskType
	RootFS         string
	SeccompProfile string
	DefaultLimits  spec.ResourceLimit
}

// CompileProfile builds the compile-phase profile for a language.
func CompileProfile(lang LanguageSpec, rootFS string) TaskProfile {
	return TaskProfile{
		LanguageID:    lang.ID,
		TaskType:      TaskTypeCompile,
		RootFS:        rootFS,
		DefaultLimits: CompileLimits(),
	}
}

// RunProfile builds the run-phase profile for a language.
func RunProfile(lang LanguageSpec, rootFS, seccompProfile string, limits spec.ResourceLimit) TaskProfile {
	return TaskProfile{
		LanguageID:     lang.ID,
		TaskType:       TaskTypeRun,
		RootFS:         rootFS,
		SeccompProfile: seccompProfile,
		DefaultLimits:  limits,
	}
}
