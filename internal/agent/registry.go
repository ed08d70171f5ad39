package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the active agent set keyed by type. Registration happens at
// startup; the detection loop only reads, so a plain RWMutex is enough.
type Registry struct {
	mu     sync.RWMutex
	agents map[Type]Agent
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[Type]Agent)}
}

// Register adds an agent. Returns an error if the type is already registered;
// the one-ModelState-per-agent-type invariant depends on this.
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return fmt.Errorf("agent: cannot register nil agent")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.Type()]; exists {
		return fmt.Errorf("agent: type %q already registered", a.Type())
	}
	r.agents[a.Type()] = a
	return nil
}

// Get returns the agent for t, or ok false if none is registered.
func (r *Registry) Get(t Type) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[t]
	return a, ok
}

// All returns the registered agents in stable (type-sorted) order.
func (r *Registry) All() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// Categories returns the distinct categories served by registered agents,
// in priority order. The engine uses it to flag degraded coverage.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[Category]bool)
	out := make([]Category, 0, 4)
	for _, a := range r.agents {
		if !seen[a.Category()] {
			seen[a.Category()] = true
			out = append(out, a.Category())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

// NewDefaultRegistry registers the five built-in agents with their
// physics-derived default states. On first deployment for a well the models
// start from these defaults; refinement happens only through the online
// adaptation loop.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []Agent{
		NewMechanicalSticking(),
		NewDifferentialSticking(),
		NewHoleCleaning(),
		NewWashoutMudLoss(),
		NewROPOptimization(),
	} {
		// Types are distinct constants; registration cannot collide here.
		_ = r.Register(a)
	}
	return r
}
