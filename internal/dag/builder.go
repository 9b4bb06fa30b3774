package dag

import (
	"fmt"
	"strings"
	"time"
)

// StepSpec is the data-driven record a Builder turns into an immutable Step.
// Per-document-type graph shapes are defined as ordered StepSpec lists in
// code/config, not authored at runtime.
type StepSpec struct {
	ID          string
	Action      Action
	DependsOn   []string
	Condition   Condition
	ResourceTag string
	MaxRetries  int
	Timeout     int // seconds; 0 means the executor default applies
	BackoffBase float64
}

// Builder assembles a Graph from StepSpec records. Construction errors are
// collected and surfaced by Build so specs can be declared fluently.
type Builder struct {
	name  string
	specs []StepSpec
	errs  []error
}

// NewBuilder starts a graph definition with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Add appends a step record. Returns the builder for chaining.
func (b *Builder) Add(spec StepSpec) *Builder {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		b.errs = append(b.errs, fmt.Errorf("step id must not be empty"))
		return b
	}
	spec.ID = id
	for _, existing := range b.specs {
		if existing.ID == id {
			b.errs = append(b.errs, fmt.Errorf("duplicate step id %q", id))
			return b
		}
	}
	if spec.Action == nil {
		b.errs = append(b.errs, fmt.Errorf("step %q has no action", id))
		return b
	}
	if spec.MaxRetries < 0 {
		spec.MaxRetries = 0
	}
	b.specs = append(b.specs, spec)
	return b
}

// Build materializes and validates the Graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("build graph %q: %w", b.name, b.errs[0])
	}

	g := &Graph{
		name:     b.name,
		steps:    make(map[string]*Step, len(b.specs)),
		order:    make([]string, 0, len(b.specs)),
		children: make(map[string][]string),
	}
	for _, spec := range b.specs {
		deps := make([]string, len(spec.DependsOn))
		copy(deps, spec.DependsOn)
		step := &Step{
			ID:          spec.ID,
			Action:      spec.Action,
			DependsOn:   deps,
			Condition:   spec.Condition,
			ResourceTag: strings.TrimSpace(spec.ResourceTag),
			MaxRetries:  spec.MaxRetries,
		}
		if spec.Timeout > 0 {
			step.Timeout = time.Duration(spec.Timeout) * time.Second
		}
		if spec.BackoffBase > 0 {
			step.BackoffBase = time.Duration(spec.BackoffBase * float64(time.Second))
		}
		g.steps[step.ID] = step
		g.order = append(g.order, step.ID)
		for _, dep := range deps {
			g.children[dep] = append(g.children[dep], step.ID)
		}
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}
