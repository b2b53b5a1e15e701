package services

import "sync"

// RunGuard is the per-job exclusivity lock: an in-memory set of job ids with
// a run in flight. It is the only shared mutable state in the scheduler.
type RunGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewRunGuard() *RunGuard {
	return &RunGuard{running: make(map[string]struct{})}
}

// TryAcquire claims the job's slot. Returns false when a run is already in
// flight.
func (g *RunGuard) TryAcquire(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.running[jobID]; held {
		return false
	}
	g.running[jobID] = struct{}{}
	return true
}

// Release frees the job's slot. Safe to call once per successful TryAcquire.
func (g *RunGuard) Release(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, jobID)
}

// Held reports whether the job currently holds its slot.
func (g *RunGuard) Held(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.running[jobID]
	return held
}

// Snapshot returns the ids currently running.
func (g *RunGuard) Snapshot() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.running))
	for id := range g.running {
		ids = append(ids, id)
	}
	return ids
}
