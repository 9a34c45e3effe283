// Package reputation tracks each agent's completed/failed counters and
// derives the Laplace-smoothed score (spec.md §4.5). It is intentionally a
// flat, single-tenant version of the teacher's
// internal/reputation/reputation_manager.go — no tenant composite keys, no
// time decay: spec.md's reputation changes only on settlement.
package reputation

import (
	"sync"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// Manager is a mutex-guarded map of agent reputations.
type Manager struct {
	mu     sync.RWMutex
	byAgent map[string]*core.Reputation
}

// New creates an empty reputation manager.
func New() *Manager {
	return &Manager{byAgent: make(map[string]*core.Reputation)}
}

// Ensure creates a zeroed reputation row for agentID if one does not exist.
func (m *Manager) Ensure(agentID string) core.Reputation {
	m.mu.Lock()
	defer m.mu.Unlock()

	rep, ok := m.byAgent[agentID]
	if !ok {
		rep = &core.Reputation{}
		m.byAgent[agentID] = rep
	}
	return *rep
}

// Get returns the current reputation for agentID; an agent with no
// recorded interactions reads as the zero value (score 0.5 via
// Reputation.Score).
func (m *Manager) Get(agentID string) core.Reputation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rep, ok := m.byAgent[agentID]; ok {
		return *rep
	}
	return core.Reputation{}
}

// RecordCompletion increments the completed counter.
func (m *Manager) RecordCompletion(agentID string) core.Reputation {
	m.mu.Lock()
	defer m.mu.Unlock()

	rep := m.getOrCreateLocked(agentID)
	rep.Completed++
	return *rep
}

// RecordFailure increments the failed counter.
func (m *Manager) RecordFailure(agentID string) core.Reputation {
	m.mu.Lock()
	defer m.mu.Unlock()

	rep := m.getOrCreateLocked(agentID)
	rep.Failed++
	return *rep
}

func (m *Manager) getOrCreateLocked(agentID string) *core.Reputation {
	rep, ok := m.byAgent[agentID]
	if !ok {
		rep = &core.Reputation{}
		m.byAgent[agentID] = rep
	}
	return rep
}
