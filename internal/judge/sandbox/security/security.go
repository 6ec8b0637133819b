// Package security defines isolation profiles applied around a sandboxed process.
package security

import (
	"fmt"
	"sync"
)

// IsolationProfile controls filesystem isolation for one run. Network
// isolation is not a profile choice: every run gets its own empty netns.
type IsolationProfile struct {
	RootFS         string `json:"RootFS"`
	SeccompProfile string `json:"SeccompProfile"`
}

// Resolver maps a profile name to its isolation settings.
type Resolver interface {
	Resolve(name string) (IsolationProfile, error)
}

// StaticResolver resolves profiles from an in-memory table.
type StaticResolver struct {
	mu       sync.RWMutex
	profiles map[string]IsolationProfile
}

// NewStaticResolver creates a resolver seeded with the given profiles.
func NewStaticResolver(profiles map[string]IsolationProfile) *StaticResolver {
	table := make(map[string]IsolationProfile, len(profiles))
	for name, p := range profiles {
		table[name] = p
	}
	return &StaticResolver{profiles: table}
}

func (r *StaticResolver) Resolve(name string) (IsolationProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return IsolationProfile{}, fmt.Errorf("unknown isolation profile: %s", name)
	}
	return p, nil
}

// Register adds or replaces a named profile.
func (r *StaticResolver) Register(name string, p IsolationProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[name] = p
}
