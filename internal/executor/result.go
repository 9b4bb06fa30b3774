package executor

import (
	"time"
)

// StepStatus is the terminal state of one step within one run.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Skip reasons recorded on StepResult. Dependency-failed skips cascade to
// their own dependents; condition skips do not.
const (
	SkipReasonDependencyFailed = "dependency failed"
	SkipReasonConditionNotMet  = "condition not met"
	SkipReasonRunCanceled      = "run canceled"
)

// StepResult is the write-once outcome of one step in one run.
type StepResult struct {
	StepID     string
	Status     StepStatus
	Output     any
	Err        error
	Attempts   int
	SkipReason string
	StartedAt  time.Time
	Duration   time.Duration
}

// RunStatus summarizes a whole run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunResult aggregates every step's outcome for one execution of one graph.
// Assembled once at the end of a run and read-only thereafter.
type RunResult struct {
	RunID      string
	GraphName  string
	Status     RunStatus
	Steps      map[string]*StepResult
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// Step returns the result for a step id.
func (r *RunResult) Step(id string) (*StepResult, bool) {
	res, ok := r.Steps[id]
	return res, ok
}

// FailedSteps returns the ids of steps that ended Failed, in no particular
// order.
func (r *RunResult) FailedSteps() []string {
	var ids []string
	for id, res := range r.Steps {
		if res.Status == StepFailed {
			ids = append(ids, id)
		}
	}
	return ids
}

// Output returns the recorded output of a Succeeded step.
func (r *RunResult) Output(id string) (any, bool) {
	res, ok := r.Steps[id]
	if !ok || res.Status != StepSucceeded {
		return nil, false
	}
	return res.Output, true
}
