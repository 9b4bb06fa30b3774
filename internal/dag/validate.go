package dag

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationKind classifies why a graph was rejected.
type ValidationKind string

const (
	KindEmptyGraph        ValidationKind = "empty_graph"
	KindMissingDependency ValidationKind = "missing_dependency"
	KindCycleDetected     ValidationKind = "cycle_detected"
)

// ValidationError describes a structural defect that makes a graph
// unexecutable. Construction-time and fatal: a rejected graph is never run.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid graph: %s: %s", e.Kind, e.Detail)
}

// Validate checks graph structure before first execution. A validated graph
// is safe for unlimited concurrent re-execution.
//
// Checks, in order: at least one step exists; every depends_on reference
// resolves inside the graph; no cycle (Kahn's algorithm, O(V+E)).
func Validate(g *Graph) error {
	if g == nil || len(g.steps) == 0 {
		return &ValidationError{Kind: KindEmptyGraph, Detail: "graph has no steps"}
	}

	var missing []string
	for _, id := range g.order {
		step := g.steps[id]
		for _, dep := range step.DependsOn {
			if _, ok := g.steps[dep]; !ok {
				missing = append(missing, fmt.Sprintf("step %q depends on %q which does not exist", id, dep))
			}
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Kind: KindMissingDependency, Detail: strings.Join(missing, "; ")}
	}

	// Kahn's algorithm: peel zero-in-degree steps; anything left over sits on
	// a cycle. The unvisited count is reported rather than enumerating members.
	in := g.inDegrees()
	queue := make([]string, 0, len(in))
	for _, id := range g.order {
		if in[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, child := range g.children[id] {
			in[child]--
			if in[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if visited != len(g.steps) {
		remainder := len(g.steps) - visited
		var stuck []string
		for id, deg := range in {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return &ValidationError{
			Kind:   KindCycleDetected,
			Detail: fmt.Sprintf("cycle among %d steps (visited %d/%d): %s", remainder, visited, len(g.steps), strings.Join(stuck, ", ")),
		}
	}

	return nil
}
