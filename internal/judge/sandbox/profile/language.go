package profile

import (
	"codearena/internal/judge/sandbox/spec"
	"codearena/pkg/errors"
)

// LanguageSpec describes how one language is compiled and executed.
type LanguageSpec struct {
	ID             string
	Label          string
	SourceFile     string
	BinaryFile     string
	CompileEnabled bool
	CompileCmd     []string
	RunCmd         []string
}

const (
	// Per-test execution limits shared by all languages.
	DefaultCPUTimeMs = 2000
	DefaultMemoryMB  = 256
	DefaultPIDs      = 64
	DefaultStackMB   = 64
	DefaultOutputMB  = 16

	// Compile phase gets a larger budget than the runs it produces.
	CompileCPUTimeMs = 15000
	CompileMemoryMB  = 1024
	CompileOutputMB  = 64
)

var languages = map[string]LanguageSpec{
	"cpp": {
		ID:             "cpp",
		Label:          "C++17",
		SourceFile:     "main.cpp",
		BinaryFile:     "main",
		CompileEnabled: true,
		CompileCmd:     []string{"g++", "-std=c++17", "-O2", "-o", "main", "main.cpp"},
		RunCmd:         []string{"./main"},
	},
	"python": {
		ID:         "python",
		Label:      "Python 3",
		SourceFile: "main.py",
		RunCmd:     []string{"python3", "main.py"},
	},
	"javascript": {
		ID:         "javascript",
		Label:      "Node.js",
		SourceFile: "main.js",
		RunCmd:     []string{"node", "main.js"},
	},
	"java": {
		ID:             "java",
		Label:          "Java",
		SourceFile:     "Main.java",
		BinaryFile:     "Main.class",
		CompileEnabled: true,
		CompileCmd:     []string{"javac", "Main.java"},
		RunCmd:         []string{"java", "-Xss64m", "Main"},
	},
	"go": {
		ID:             "go",
		Label:          "Go",
		SourceFile:     "main.go",
		BinaryFile:     "main",
		CompileEnabled: true,
		CompileCmd:     []string{"go", "build", "-o", "main", "main.go"},
		RunCmd:         []string{"./main"},
	},
}

// Lookup returns the language spec for the given id.
func Lookup(id string) (LanguageSpec, error) {
	lang, ok := languages[id]
	if !ok {
		return LanguageSpec{}, errors.Newf(errors.LanguageNotSupported, "language %q is not supported", id)
	}
	return lang, nil
}

// Supported reports whether the language id is known.
func Supported(id string) bool {
	_, ok := languages[id]
	return ok
}

// RunLimits builds per-test limits from the problem's declared bounds.
// Zero values fall back to the platform defaults.
func RunLimits(timeLimitMs, memoryLimitMB int64) spec.ResourceLimit {
	if timeLimitMs <= 0 {
		timeLimitMs = DefaultCPUTimeMs
	}
	if memoryLimitMB <= 0 {
		memoryLimitMB = DefaultMemoryMB
	}
	return spec.ResourceLimit{
		CPUTimeMs:  timeLimitMs,
		WallTimeMs: timeLimitMs*2 + 1000,
		MemoryMB:   memoryLimitMB,
		StackMB:    DefaultStackMB,
		OutputMB:   DefaultOutputMB,
		PIDs:       DefaultPIDs,
	}
}

// CompileLimits builds limits for the compile phase.
func CompileLimits() spec.ResourceLimit {
	return spec.ResourceLimit{
		CPUTimeMs:  CompileCPUTimeMs,
		WallTimeMs: CompileCPUTimeMs + 5000,
		MemoryMB:   CompileMemoryMB,
		StackMB:    DefaultStackMB,
		OutputMB:   CompileOutputMB,
		PIDs:       DefaultPIDs,
	}
}
