package dag

import (
	"context"
	"time"
)

// Inputs exposes the accumulated run state to step actions and conditions.
// Implementations are supplied by the executor; outputs of Failed or Skipped
// steps are never retrievable.
type Inputs interface {
	// Output returns the recorded output of a completed step.
	Output(stepID string) (any, bool)
	// Value returns an entry from the initial run context.
	Value(key string) (any, bool)
}

// Action is the executable work of one step.
type Action func(ctx context.Context, in Inputs) (any, error)

// Condition gates step execution. When it returns false the step is recorded
// as Skipped without consuming a retry, a timeout, or a rate-limiter token.
type Condition func(in Inputs) bool

// Step is one unit of work in a Graph. Steps are immutable once the graph is
// built and are owned exclusively by their Graph.
type Step struct {
	ID          string
	Action      Action
	DependsOn   []string
	Condition   Condition
	ResourceTag string
	MaxRetries  int
	Timeout     time.Duration
	BackoffBase time.Duration
}

// Graph is a named, validated collection of Steps forming a DAG.
type Graph struct {
	name     string
	steps    map[string]*Step
	order    []string
	children map[string][]string
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.steps) }

// Step returns the step with the given id.
func (g *Graph) Step(id string) (*Step, bool) {
	step, ok := g.steps[id]
	return step, ok
}

// StepIDs returns step ids in insertion order.
func (g *Graph) StepIDs() []string {
	cp := make([]string, len(g.order))
	copy(cp, g.order)
	return cp
}

// Children returns the ids of steps that depend directly on the given step.
func (g *Graph) Children(id string) []string {
	cp := make([]string, len(g.children[id]))
	copy(cp, g.children[id])
	return cp
}

func (g *Graph) inDegrees() map[string]int {
	in := make(map[string]int, len(g.steps))
	for id := range g.steps {
		in[id] = 0
	}
	for _, step := range g.steps {
		for _, dep := range step.DependsOn {
			if _, ok := g.steps[dep]; ok {
				in[step.ID]++
			}
		}
	}
	return in
}
