package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docflow/internal/dag"
	"docflow/internal/ratelimit"
	"docflow/internal/services"
)

func newTestExecutor(t *testing.T, concurrency int64) *Executor {
	t.Helper()
	e, err := New(Options{MaxConcurrency: concurrency})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Backoff sleeps are a no-op in tests; backoffDelay is tested directly.
	e.sleep = func(context.Context, time.Duration) error { return nil }
	e.jitter = func() float64 { return 0 }
	return e
}

func mustBuild(t *testing.T, name string, specs ...dag.StepSpec) *dag.Graph {
	t.Helper()
	b := dag.NewBuilder(name)
	for _, spec := range specs {
		b.Add(spec)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func constant(v any) dag.Action {
	return func(context.Context, dag.Inputs) (any, error) { return v, nil }
}

func failing(err error) dag.Action {
	return func(context.Context, dag.Inputs) (any, error) { return nil, err }
}

func TestExecuteDocumentPipelineWithPermanentFailure(t *testing.T) {
	// extract -> {save_a, save_b} -> join, where save_b exhausts 3 attempts.
	// Independent branch save_a must complete; join must be skipped.
	persistErr := errors.New("storage unavailable")
	g := mustBuild(t, "document",
		dag.StepSpec{ID: "extract", Action: constant("payload")},
		dag.StepSpec{ID: "save_a", Action: constant("a.json"), DependsOn: []string{"extract"}},
		dag.StepSpec{ID: "save_b", Action: failing(persistErr), DependsOn: []string{"extract"}, MaxRetries: 3},
		dag.StepSpec{ID: "join", Action: constant("done"), DependsOn: []string{"save_a", "save_b"}},
	)

	e := newTestExecutor(t, 4)
	result, err := e.Execute(context.Background(), g, "run-1", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Status != RunFailed {
		t.Fatalf("run status = %s, want %s", result.Status, RunFailed)
	}
	if res, _ := result.Step("extract"); res.Status != StepSucceeded {
		t.Fatalf("extract = %+v, want succeeded", res)
	}
	if res, _ := result.Step("save_a"); res.Status != StepSucceeded {
		t.Fatalf("save_a = %+v, want succeeded", res)
	}
	saveB, _ := result.Step("save_b")
	if saveB.Status != StepFailed {
		t.Fatalf("save_b status = %s, want failed", saveB.Status)
	}
	if saveB.Attempts != 3 {
		t.Fatalf("save_b attempts = %d, want 3", saveB.Attempts)
	}
	if !errors.Is(saveB.Err, persistErr) {
		t.Fatalf("save_b err = %v, want %v", saveB.Err, persistErr)
	}
	join, _ := result.Step("join")
	if join.Status != StepSkipped || join.SkipReason != SkipReasonDependencyFailed {
		t.Fatalf("join = %+v, want skipped(dependency failed)", join)
	}
	if join.Attempts != 0 {
		t.Fatalf("skipped step recorded %d attempts", join.Attempts)
	}
}

func TestFailureCascadesToTransitiveDependentsOnly(t *testing.T) {
	boom := errors.New("boom")
	g := mustBuild(t, "cascade",
		dag.StepSpec{ID: "root", Action: constant(1)},
		dag.StepSpec{ID: "bad", Action: failing(boom), DependsOn: []string{"root"}},
		dag.StepSpec{ID: "child", Action: constant(2), DependsOn: []string{"bad"}},
		dag.StepSpec{ID: "grandchild", Action: constant(3), DependsOn: []string{"child"}},
		dag.StepSpec{ID: "sibling", Action: constant(4), DependsOn: []string{"root"}},
	)

	e := newTestExecutor(t, 2)
	result, err := e.Execute(context.Background(), g, "run-2", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, id := range []string{"child", "grandchild"} {
		res, _ := result.Step(id)
		if res.Status != StepSkipped || res.SkipReason != SkipReasonDependencyFailed {
			t.Fatalf("%s = %+v, want skipped(dependency failed)", id, res)
		}
	}
	if res, _ := result.Step("sibling"); res.Status != StepSucceeded {
		t.Fatalf("sibling = %+v, independent branch must be unaffected", res)
	}
}

func TestConditionSkipDoesNotCascade(t *testing.T) {
	g := mustBuild(t, "condskip",
		dag.StepSpec{ID: "root", Action: constant("small")},
		dag.StepSpec{
			ID:        "optional",
			Action:    constant("metrics"),
			DependsOn: []string{"root"},
			Condition: func(in dag.Inputs) bool {
				v, _ := in.Output("root")
				return v == "large"
			},
		},
		dag.StepSpec{ID: "after", Action: constant("done"), DependsOn: []string{"optional"}},
	)

	e := newTestExecutor(t, 2)
	result, err := e.Execute(context.Background(), g, "run-3", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	opt, _ := result.Step("optional")
	if opt.Status != StepSkipped || opt.SkipReason != SkipReasonConditionNotMet {
		t.Fatalf("optional = %+v, want skipped(condition not met)", opt)
	}
	after, _ := result.Step("after")
	if after.Status != StepSucceeded {
		t.Fatalf("after = %+v, condition skips must not cascade", after)
	}
	if result.Status != RunSucceeded {
		t.Fatalf("run status = %s, condition skips are not failures", result.Status)
	}
}

func TestStepOutputsFlowThroughRunContext(t *testing.T) {
	g := mustBuild(t, "flow",
		dag.StepSpec{ID: "extract", Action: func(_ context.Context, in dag.Inputs) (any, error) {
			doc, _ := in.Value("document_id")
			return "extracted:" + doc.(string), nil
		}},
		dag.StepSpec{ID: "save", Action: func(_ context.Context, in dag.Inputs) (any, error) {
			v, ok := in.Output("extract")
			if !ok {
				return nil, errors.New("extract output missing")
			}
			return v.(string) + ":saved", nil
		}, DependsOn: []string{"extract"}},
	)

	e := newTestExecutor(t, 1)
	result, err := e.Execute(context.Background(), g, "run-4", map[string]any{"document_id": "doc-9"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out, ok := result.Output("save")
	if !ok || out != "extracted:doc-9:saved" {
		t.Fatalf("save output = %v (%t)", out, ok)
	}
}

func TestFailedStepOutputNotRetrievable(t *testing.T) {
	g := mustBuild(t, "noleak",
		dag.StepSpec{ID: "bad", Action: failing(errors.New("nope"))},
	)
	e := newTestExecutor(t, 1)
	result, err := e.Execute(context.Background(), g, "run-5", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := result.Output("bad"); ok {
		t.Fatal("failed step output retrievable")
	}
}

func TestNonRetryableErrorStopsRetries(t *testing.T) {
	var calls atomic.Int32
	g := mustBuild(t, "validation",
		dag.StepSpec{ID: "check", MaxRetries: 5, Action: func(context.Context, dag.Inputs) (any, error) {
			calls.Add(1)
			return nil, services.Wrap(services.ErrValidation, "extraction", "check", "unsupported mime type", nil)
		}},
	)
	e := newTestExecutor(t, 1)
	result, err := e.Execute(context.Background(), g, "run-6", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res, _ := result.Step("check")
	if res.Status != StepFailed || res.Attempts != 1 || calls.Load() != 1 {
		t.Fatalf("validation error retried: %+v, calls=%d", res, calls.Load())
	}
}

func TestGlobalConcurrencyBound(t *testing.T) {
	const bound = 2
	var current, peak atomic.Int32
	action := func(context.Context, dag.Inputs) (any, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return nil, nil
	}
	specs := make([]dag.StepSpec, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		specs = append(specs, dag.StepSpec{ID: id, Action: action})
	}
	g := mustBuild(t, "wide", specs...)

	e := newTestExecutor(t, bound)
	if _, err := e.Execute(context.Background(), g, "run-7", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if p := peak.Load(); p > bound {
		t.Fatalf("peak concurrency %d exceeded bound %d", p, bound)
	}
}

func TestConcurrentRunsShareOneLimiter(t *testing.T) {
	limits := ratelimit.NewRegistry(map[string]ratelimit.Settings{
		"extraction_api": {Rate: 1000, Burst: 1},
	})
	e, err := New(Options{MaxConcurrency: 4, Limits: limits})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.sleep = func(context.Context, time.Duration) error { return nil }

	g := mustBuild(t, "tagged",
		dag.StepSpec{ID: "call", Action: constant("ok"), ResourceTag: "extraction_api"},
	)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Execute(context.Background(), g, "run", nil)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}

func TestAttemptTimeoutIsRetryable(t *testing.T) {
	var calls atomic.Int32
	g := mustBuild(t, "slow",
		dag.StepSpec{ID: "hang", MaxRetries: 2, Timeout: 1, Action: func(ctx context.Context, _ dag.Inputs) (any, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return "ok", nil
		}},
	)
	e := newTestExecutor(t, 1)
	start := time.Now()
	result, err := e.Execute(context.Background(), g, "run-8", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res, _ := result.Step("hang")
	if res.Status != StepSucceeded || res.Attempts != 2 {
		t.Fatalf("hang = %+v, want succeeded after retry", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout retry took too long")
	}
}

func TestExecuteRejectsInvalidGraph(t *testing.T) {
	e := newTestExecutor(t, 1)
	_, err := e.Execute(context.Background(), nil, "run-9", nil)
	var verr *dag.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestNewRejectsZeroConcurrency(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
