package executor

import (
	"sync"

	"docflow/internal/services"
)

// Registry retains completed RunResults for lookup by run id, evicting the
// oldest entries beyond maxEntries. Zero maxEntries means unbounded.
type Registry struct {
	mu      sync.Mutex
	max     int
	results map[string]*RunResult
	order   []string
}

// NewRegistry creates a result registry retaining at most maxEntries runs.
func NewRegistry(maxEntries int) *Registry {
	return &Registry{
		max:     maxEntries,
		results: make(map[string]*RunResult),
	}
}

// Record stores a completed run, replacing any previous result under the same
// run id.
func (r *Registry) Record(result *RunResult) {
	if result == nil || result.RunID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.results[result.RunID]; !exists {
		r.order = append(r.order, result.RunID)
	}
	r.results[result.RunID] = result

	for r.max > 0 && len(r.order) > r.max {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.results, oldest)
	}
}

// Get returns the stored result for a run id, or ErrNotFound.
func (r *Registry) Get(runID string) (*RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[runID]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "executor", "get run", "unknown run id "+runID, nil)
	}
	return result, nil
}

// Len reports the number of retained runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}
