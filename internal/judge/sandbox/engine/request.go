package engine

import (
	"codearena/internal/judge/sandbox/security"
	"codearena/internal/judge/sandbox/spec"
)

type initRequest struct {
	RunSpec       spec.RunSpec
	Isolation     security.IsolationProfile
	EnableSeccomp bool
	EnableNs      bool
}
