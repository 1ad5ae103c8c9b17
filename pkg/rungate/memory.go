package rungate

import (
	"context"
	"sync"
)

// MemoryGate is a process-local gate for single-worker deployments and tests.
type MemoryGate struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// NewMemoryGate creates an empty in-memory gate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{
		running: make(map[string]struct{}),
	}
}

func (g *MemoryGate) Acquire(_ context.Context, workflowID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.running[workflowID]; held {
		return false, nil
	}

	g.running[workflowID] = struct{}{}

	return true, nil
}

func (g *MemoryGate) Release(_ context.Context, workflowID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.running, workflowID)

	return nil
}

func (g *MemoryGate) IsRunning(_ context.Context, workflowID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, held := g.running[workflowID]

	return held, nil
}
