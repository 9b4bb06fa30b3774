package dag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docflow/internal/dag"
)

func noopAction(context.Context, dag.Inputs) (any, error) { return nil, nil }

func buildGraph(t *testing.T, specs ...dag.StepSpec) *dag.Graph {
	t.Helper()
	b := dag.NewBuilder("test")
	for _, spec := range specs {
		b.Add(spec)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestBuildRejectsEmptyGraph(t *testing.T) {
	_, err := dag.NewBuilder("empty").Build()
	var verr *dag.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != dag.KindEmptyGraph {
		t.Fatalf("kind = %s, want %s", verr.Kind, dag.KindEmptyGraph)
	}
}

func TestBuildRejectsMissingDependency(t *testing.T) {
	_, err := dag.NewBuilder("missing").
		Add(dag.StepSpec{ID: "extract", Action: noopAction, DependsOn: []string{"upload"}}).
		Build()
	var verr *dag.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != dag.KindMissingDependency {
		t.Fatalf("kind = %s, want %s", verr.Kind, dag.KindMissingDependency)
	}
	if !strings.Contains(verr.Detail, `"upload"`) {
		t.Fatalf("detail should name the missing dependency: %s", verr.Detail)
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	_, err := dag.NewBuilder("cycle").
		Add(dag.StepSpec{ID: "a", Action: noopAction, DependsOn: []string{"c"}}).
		Add(dag.StepSpec{ID: "b", Action: noopAction, DependsOn: []string{"a"}}).
		Add(dag.StepSpec{ID: "c", Action: noopAction, DependsOn: []string{"b"}}).
		Build()
	var verr *dag.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != dag.KindCycleDetected {
		t.Fatalf("kind = %s, want %s", verr.Kind, dag.KindCycleDetected)
	}
	if !strings.Contains(verr.Detail, "cycle among 3 steps") {
		t.Fatalf("detail should carry the unvisited count: %s", verr.Detail)
	}
}

func TestBuildRejectsSelfReference(t *testing.T) {
	_, err := dag.NewBuilder("self").
		Add(dag.StepSpec{ID: "a", Action: noopAction, DependsOn: []string{"a"}}).
		Build()
	var verr *dag.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != dag.KindCycleDetected {
		t.Fatalf("kind = %s, want %s", verr.Kind, dag.KindCycleDetected)
	}
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	_, err := dag.NewBuilder("dup").
		Add(dag.StepSpec{ID: "a", Action: noopAction}).
		Add(dag.StepSpec{ID: "a", Action: noopAction}).
		Build()
	if err == nil || !strings.Contains(err.Error(), "duplicate step id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestBuildRejectsMissingAction(t *testing.T) {
	_, err := dag.NewBuilder("noaction").
		Add(dag.StepSpec{ID: "a"}).
		Build()
	if err == nil || !strings.Contains(err.Error(), "no action") {
		t.Fatalf("expected missing action error, got %v", err)
	}
}

func TestCycleBelowValidBranchStillDetected(t *testing.T) {
	// A valid chain feeding into a two-step cycle: Kahn visits the chain but
	// not the cycle members.
	_, err := dag.NewBuilder("mixed").
		Add(dag.StepSpec{ID: "root", Action: noopAction}).
		Add(dag.StepSpec{ID: "x", Action: noopAction, DependsOn: []string{"root", "y"}}).
		Add(dag.StepSpec{ID: "y", Action: noopAction, DependsOn: []string{"x"}}).
		Build()
	var verr *dag.ValidationError
	if !errors.As(err, &verr) || verr.Kind != dag.KindCycleDetected {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if !strings.Contains(verr.Detail, "visited 1/3") {
		t.Fatalf("detail = %s, want visited 1/3", verr.Detail)
	}
}
