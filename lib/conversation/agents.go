// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry holds the attached agents of a running service, keyed by
// name. The daemon attaches agents at startup and detaches them on
// shutdown or configuration reload.
type Registry struct {
	mutex  sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry returns an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Attach registers an agent. Names are unique.
func (registry *Registry) Attach(agent *Agent) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, exists := registry.agents[agent.Name()]; exists {
		return fmt.Errorf("conversation: agent %q already attached", agent.Name())
	}
	registry.agents[agent.Name()] = agent
	return nil
}

// Detach removes an agent. Unknown names are a no-op.
func (registry *Registry) Detach(name string) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	delete(registry.agents, name)
}

// Get returns the named agent.
func (registry *Registry) Get(name string) (*Agent, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	agent, ok := registry.agents[name]
	return agent, ok
}

// Resolve returns the named agent, or the sole attached agent when
// name is empty and exactly one is attached.
func (registry *Registry) Resolve(name string) (*Agent, error) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	if name != "" {
		agent, ok := registry.agents[name]
		if !ok {
			return nil, fmt.Errorf("conversation: unknown agent %q", name)
		}
		return agent, nil
	}
	if len(registry.agents) == 1 {
		for _, agent := range registry.agents {
			return agent, nil
		}
	}
	return nil, fmt.Errorf("conversation: agent name required, %d agents attached", len(registry.agents))
}

// Names returns the attached agent names, sorted.
func (registry *Registry) Names() []string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	names := make([]string, 0, len(registry.agents))
	for name := range registry.agents {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns the attached agents sorted by name.
func (registry *Registry) All() []*Agent {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	agents := make([]*Agent, 0, len(registry.agents))
	for _, agent := range registry.agents {
		agents = append(agents, agent)
	}
	slices.SortFunc(agents, func(a, b *Agent) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return agents
}
