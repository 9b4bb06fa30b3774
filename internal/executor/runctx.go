package executor

import (
	"sync"
)

// runContext accumulates step outputs for one run and exposes them to actions
// and conditions through dag.Inputs. Outputs of Failed or Skipped steps are
// never stored. Private to one run; the mutex covers concurrent siblings
// within a layer.
type runContext struct {
	mu      sync.RWMutex
	outputs map[string]any
	values  map[string]any
}

func newRunContext(initial map[string]any) *runContext {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &runContext{
		outputs: make(map[string]any),
		values:  values,
	}
}

func (rc *runContext) Output(stepID string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.outputs[stepID]
	return v, ok
}

func (rc *runContext) Value(key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.values[key]
	return v, ok
}

func (rc *runContext) setOutput(stepID string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.outputs[stepID] = value
}
