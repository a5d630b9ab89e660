// Package presence implements the user -> live connections registry.
package presence

import (
	"context"
	"sync"

	"coursehub/internal/domain/service"
)

// MemoryRegistry is process-local: with several gateway instances each
// one only sees its own connections.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[string]map[string]struct{})}
}

var _ service.PresenceRegistry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) Add(_ context.Context, userID, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	if _, dup := set[connID]; dup {
		return false, nil
	}
	set[connID] = struct{}{}
	return len(set) == 1, nil
}

func (r *MemoryRegistry) Remove(_ context.Context, userID, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false, nil
	}
	if _, present := set[connID]; !present {
		return false, nil
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true, nil
	}
	return false, nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0, nil
}
