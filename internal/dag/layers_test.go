package dag_test

import (
	"testing"

	"docflow/internal/dag"
)

func indexLayers(layers [][]string) map[string]int {
	idx := make(map[string]int)
	for i, layer := range layers {
		for _, id := range layer {
			idx[id] = i
		}
	}
	return idx
}

func TestLayersDocumentPipelineShape(t *testing.T) {
	// extract -> {save_json, save_csv} -> review, plus metrics off extract.
	g := buildGraph(t,
		dag.StepSpec{ID: "extract", Action: noopAction},
		dag.StepSpec{ID: "save_json", Action: noopAction, DependsOn: []string{"extract"}},
		dag.StepSpec{ID: "save_csv", Action: noopAction, DependsOn: []string{"extract"}},
		dag.StepSpec{ID: "review", Action: noopAction, DependsOn: []string{"save_json", "save_csv"}},
		dag.StepSpec{ID: "metrics", Action: noopAction, DependsOn: []string{"extract"}},
	)

	layers := dag.Layers(g)
	if len(layers) != 3 {
		t.Fatalf("layers = %d, want 3", len(layers))
	}
	idx := indexLayers(layers)
	if idx["extract"] != 0 {
		t.Fatalf("extract in layer %d, want 0", idx["extract"])
	}
	for _, id := range []string{"save_json", "save_csv", "metrics"} {
		if idx[id] != 1 {
			t.Fatalf("%s in layer %d, want 1", id, idx[id])
		}
	}
	if idx["review"] != 2 {
		t.Fatalf("review in layer %d, want 2", idx["review"])
	}
}

func TestLayersParentsAlwaysEarlier(t *testing.T) {
	g := buildGraph(t,
		dag.StepSpec{ID: "a", Action: noopAction},
		dag.StepSpec{ID: "b", Action: noopAction},
		dag.StepSpec{ID: "c", Action: noopAction, DependsOn: []string{"a"}},
		dag.StepSpec{ID: "d", Action: noopAction, DependsOn: []string{"a", "b"}},
		dag.StepSpec{ID: "e", Action: noopAction, DependsOn: []string{"c", "d"}},
		dag.StepSpec{ID: "f", Action: noopAction, DependsOn: []string{"b"}},
	)

	layers := dag.Layers(g)
	idx := indexLayers(layers)

	// Every step appears exactly once.
	total := 0
	for _, layer := range layers {
		total += len(layer)
	}
	if total != g.Len() {
		t.Fatalf("layers cover %d steps, want %d", total, g.Len())
	}

	for _, id := range g.StepIDs() {
		step, _ := g.Step(id)
		for _, dep := range step.DependsOn {
			if idx[dep] >= idx[id] {
				t.Fatalf("parent %s (layer %d) not strictly before %s (layer %d)", dep, idx[dep], id, idx[id])
			}
		}
	}
}

func TestLayersSingleChain(t *testing.T) {
	g := buildGraph(t,
		dag.StepSpec{ID: "one", Action: noopAction},
		dag.StepSpec{ID: "two", Action: noopAction, DependsOn: []string{"one"}},
		dag.StepSpec{ID: "three", Action: noopAction, DependsOn: []string{"two"}},
	)
	layers := dag.Layers(g)
	if len(layers) != 3 {
		t.Fatalf("chain layers = %d, want 3", len(layers))
	}
	for i, layer := range layers {
		if len(layer) != 1 {
			t.Fatalf("layer %d width = %d, want 1", i, len(layer))
		}
	}
}

func TestGraphAccessors(t *testing.T) {
	g := buildGraph(t,
		dag.StepSpec{ID: "a", Action: noopAction},
		dag.StepSpec{ID: "b", Action: noopAction, DependsOn: []string{"a"}, ResourceTag: "db", MaxRetries: 2},
	)
	if g.Name() != "test" {
		t.Fatalf("name = %q", g.Name())
	}
	step, ok := g.Step("b")
	if !ok {
		t.Fatal("step b missing")
	}
	if step.ResourceTag != "db" || step.MaxRetries != 2 {
		t.Fatalf("step attributes not preserved: %+v", step)
	}
	children := g.Children("a")
	if len(children) != 1 || children[0] != "b" {
		t.Fatalf("children(a) = %v", children)
	}
}
