package handlers

import (
	"fmt"
	"sync"

	"github.com/dvloznov/csv-warehouse/internal/pipeline"
)

// RunRegistry keeps completed run results in memory so the API can serve
// status and artifact downloads. Results live until process restart, same
// lifetime as the in-memory job queue.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*pipeline.RunResult
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*pipeline.RunResult)}
}

// Save stores a run result under its RunID.
func (r *RunRegistry) Save(result *pipeline.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[result.RunID] = result
}

// Get retrieves a run result by ID.
func (r *RunRegistry) Get(runID string) (*pipeline.RunResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return result, nil
}
