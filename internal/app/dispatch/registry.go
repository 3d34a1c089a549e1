package dispatch

import (
	"fmt"
	"sync"

	"github.com/ghalamif/AegisSentinel/internal/agents"
)

// Registry holds the running agents. Route prefers the agent bound to the
// exact machine id; only when none is bound do prefix claims apply, so one
// machine's telemetry never reaches another machine's history.
type Registry struct {
	mu     sync.RWMutex
	agents []agents.Agent
	byID   map[string]agents.Agent
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]agents.Agent{}}
}

func (r *Registry) Add(a agents.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[a.ID()]; dup {
		return fmt.Errorf("agent %s already registered", a.ID())
	}
	r.byID[a.ID()] = a
	r.agents = append(r.agents, a)
	return nil
}

func (r *Registry) Route(machineID string) []agents.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byID[machineID]; ok {
		return []agents.Agent{a}
	}
	var out []agents.Agent
	for _, a := range r.agents {
		if a.Claims(machineID) {
			out = append(out, a)
		}
	}
	return out
}

// Agents returns the registered agents in registration order.
func (r *Registry) Agents() []agents.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agents.Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
