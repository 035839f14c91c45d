package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopops/automator/internal/domain/shared"
)

// Registry holds the agents available to the engine, keyed by type
type Registry struct {
	mu     sync.RWMutex
	agents map[Type]Agent
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{agents: make(map[Type]Agent)}
}

// Register adds an agent, rejecting duplicate types
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := a.Type()
	if _, exists := r.agents[t]; exists {
		return fmt.Errorf("%w: agent %q already registered", shared.ErrAlreadyExists, t)
	}
	r.agents[t] = a
	return nil
}

// Get returns the agent registered for t
func (r *Registry) Get(t Type) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[t]
	if !ok {
		return nil, fmt.Errorf("%w: no agent registered for type %q", shared.ErrNotFound, t)
	}
	return a, nil
}

// Types returns the registered agent types in stable order
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
