//go:build linux

package engine

import (
	"syscall"
	"testing"
)

func TestBuildSysProcAttrAlwaysUnsharesNetwork(t *testing.T) {
	t.Parallel()
	attr := buildSysProcAttr(true)
	if attr.Cloneflags&syscall.CLONE_NEWNET == 0 {
		t.Fatal("expected every namespaced run to get its own network namespace")
	}
	for _, flag := range []uintptr{syscall.CLONE_NEWNS, syscall.CLONE_NEWPID, syscall.CLONE_NEWUSER} {
		if attr.Cloneflags&flag == 0 {
			t.Fatalf("missing clone flag %#x", flag)
		}
	}

	plain := buildSysProcAttr(false)
	if plain.Cloneflags != 0 {
		t.Fatalf("expected no namespaces when disabled, got %#x", plain.Cloneflags)
	}
	if !plain.Setpgid {
		t.Fatal("expected each run in its own process group")
	}
}
