package profile

import (
	"testing"

	"codearena/pkg/errors"
)

func TestLookup(t *testing.T) {
	t.Parallel()
	lang, err := Lookup("cpp")
	if err != nil {
		t.Fatalf("lookup cpp failed: %v", err)
	}
	if !lang.CompileEnabled {
		t.Fatal("expected cpp to require compilation")
	}
	if lang.SourceFile != "main.cpp" {
		t.Fatalf("expected main.cpp, got %s", lang.SourceFile)
	}

	_, err = Lookup("brainfuck")
	if err == nil {
		t.Fatal("expected unknown language to fail")
	}
	if !errors.Is(err, errors.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()
	for _, id := range []string{"cpp", "python", "javascript", "java", "go"} {
		if !Supported(id) {
			t.Fatalf("expected %s to be supported", id)
		}
	}
	if Supported("") {
		t.Fatal("expected empty id to be unsupported")
	}
}

func TestRunLimits(t *testing.T) {
	t.Parallel()
	limits := RunLimits(1000, 128)
	if limits.CPUTimeMs != 1000 {
		t.Fatalf("expected cpu 1000ms, got %d", limits.CPUTimeMs)
	}
	if limits.WallTimeMs != 3000 {
		t.Fatalf("expected wall 3000ms, got %d", limits.WallTimeMs)
	}
	if limits.MemoryMB != 128 {
		t.Fatalf("expected 128MB, got %d", limits.MemoryMB)
	}
	if limits.PIDs != DefaultPIDs || limits.StackMB != DefaultStackMB || limits.OutputMB != DefaultOutputMB {
		t.Fatalf("unexpected defaults: %+v", limits)
	}
}

func TestRunLimitsDefaults(t *testing.T) {
	t.Parallel()
	limits := RunLimits(0, 0)
	if limits.CPUTimeMs != DefaultCPUTimeMs {
		t.Fatalf("expected default cpu, got %d", limits.CPUTimeMs)
	}
	if limits.WallTimeMs != DefaultCPUTimeMs*2+1000 {
		t.Fatalf("expected default wall, got %d", limits.WallTimeMs)
	}
	if limits.MemoryMB != DefaultMemoryMB {
		t.Fatalf("expected default memory, got %d", limits.MemoryMB)
	}
}

func TestCompileLimits(t *testing.T) {
	t.Parallel()
	limits := CompileLimits()
	if limits.CPUTimeMs != CompileCPUTimeMs {
		t.Fatalf("expected compile cpu budget, got %d", limits.CPUTimeMs)
	}
	if limits.MemoryMB != CompileMemoryMB {
		t.Fatalf("expected compile memory budget, got %d", limits.MemoryMB)
	}
}
