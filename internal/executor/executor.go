package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"docflow/internal/dag"
	"docflow/internal/logging"
	"docflow/internal/ratelimit"
	"docflow/internal/services"
)

const (
	defaultStepTimeout = 5 * time.Minute
	defaultBackoffBase = 500 * time.Millisecond
)

// Options configures an Executor.
type Options struct {
	// MaxConcurrency bounds in-flight step actions across all concurrent
	// runs sharing this Executor. Must be at least 1.
	MaxConcurrency int64

	// Limits supplies rate limiters for step resource tags. Optional.
	Limits *ratelimit.Registry

	// DefaultTimeout applies to steps that declare none.
	DefaultTimeout time.Duration

	// DefaultBackoffBase applies to steps that declare none.
	DefaultBackoffBase time.Duration

	Logger *slog.Logger
}

// Executor runs graphs. One Executor is shared by all concurrent runs in a
// process; its semaphore and rate limiters are the only cross-run state.
type Executor struct {
	sem         *semaphore.Weighted
	limits      *ratelimit.Registry
	timeout     time.Duration
	backoffBase time.Duration
	logger      *slog.Logger

	// sleep and jitter are swapped out by tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// New creates an Executor from Options.
func New(opts Options) (*Executor, error) {
	if opts.MaxConcurrency < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "executor", "new",
			fmt.Sprintf("max concurrency must be at least 1, got %d", opts.MaxConcurrency), nil)
	}
	e := &Executor{
		sem:         semaphore.NewWeighted(opts.MaxConcurrency),
		limits:      opts.Limits,
		timeout:     opts.DefaultTimeout,
		backoffBase: opts.DefaultBackoffBase,
		logger:      opts.Logger,
		sleep:       sleepContext,
		jitter:      rand.Float64,
	}
	if e.timeout <= 0 {
		e.timeout = defaultStepTimeout
	}
	if e.backoffBase <= 0 {
		e.backoffBase = defaultBackoffBase
	}
	if e.limits == nil {
		e.limits = ratelimit.NewRegistry(nil)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	return e, nil
}

// Execute runs the graph once with the given run id and initial context
// values. The returned RunResult always carries a terminal result for every
// step; step failures never surface as an Execute error. The error return is
// reserved for an invalid graph.
func (e *Executor) Execute(ctx context.Context, g *dag.Graph, runID string, initial map[string]any) (*RunResult, error) {
	if err := dag.Validate(g); err != nil {
		return nil, err
	}

	ctx = services.WithRunID(ctx, runID)
	log := e.logger.With(
		logging.String(logging.FieldComponent, "executor"),
		logging.String(logging.FieldRunID, runID),
	)
	log.Debug("run started", logging.String("graph", g.Name()), logging.Int("steps", g.Len()))

	started := time.Now()
	rc := newRunContext(initial)

	var mu sync.Mutex
	results := make(map[string]*StepResult, g.Len())
	record := func(res *StepResult) {
		mu.Lock()
		results[res.StepID] = res
		mu.Unlock()
		if res.Status == StepSucceeded {
			rc.setOutput(res.StepID, res.Output)
		}
	}
	lookup := func(id string) *StepResult {
		mu.Lock()
		defer mu.Unlock()
		return results[id]
	}

	for _, layer := range dag.Layers(g) {
		var wg sync.WaitGroup
		for _, id := range layer {
			step, _ := g.Step(id)
			wg.Add(1)
			go func(step *dag.Step) {
				defer wg.Done()
				record(e.runStep(ctx, log, step, rc, lookup))
			}(step)
		}
		wg.Wait()
	}

	finished := time.Now()
	result := &RunResult{
		RunID:      runID,
		GraphName:  g.Name(),
		Status:     RunSucceeded,
		Steps:      results,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
	for _, res := range results {
		if res.Status == StepFailed {
			result.Status = RunFailed
			break
		}
	}
	log.Debug("run finished",
		logging.String("graph", g.Name()),
		logging.String("status", string(result.Status)),
		logging.Duration("duration", result.Duration))
	return result, nil
}

// runStep drives one step to a terminal StepResult. Dependency-failed skips
// are decided before the condition runs and before any semaphore or limiter
// token is taken.
func (e *Executor) runStep(ctx context.Context, log *slog.Logger, step *dag.Step, rc *runContext, lookup func(string) *StepResult) *StepResult {
	res := &StepResult{StepID: step.ID, StartedAt: time.Now()}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	stepCtx := services.WithStep(ctx, step.ID)

	for _, dep := range step.DependsOn {
		parent := lookup(dep)
		if parent == nil {
			continue
		}
		if parent.Status == StepFailed || (parent.Status == StepSkipped && parent.SkipReason == SkipReasonDependencyFailed) {
			res.Status = StepSkipped
			res.SkipReason = SkipReasonDependencyFailed
			log.Debug("step skipped",
				logging.String(logging.FieldStep, step.ID),
				logging.String("reason", res.SkipReason),
				logging.String("parent", dep))
			return res
		}
	}

	if step.Condition != nil && !step.Condition(rc) {
		res.Status = StepSkipped
		res.SkipReason = SkipReasonConditionNotMet
		log.Debug("step skipped",
			logging.String(logging.FieldStep, step.ID),
			logging.String("reason", res.SkipReason))
		return res
	}

	if err := e.sem.Acquire(stepCtx, 1); err != nil {
		res.Status = StepSkipped
		res.SkipReason = SkipReasonRunCanceled
		return res
	}
	defer e.sem.Release(1)

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	base := step.BackoffBase
	if base <= 0 {
		base = e.backoffBase
	}
	maxAttempts := step.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(stepCtx, e.backoffDelay(base, attempt-1)); err != nil {
				break
			}
		}

		if step.ResourceTag != "" {
			if err := e.limits.Acquire(stepCtx, step.ResourceTag); err != nil {
				lastErr = err
				break
			}
		}

		output, err := e.attempt(stepCtx, step, rc, timeout)
		res.Attempts++
		if err == nil {
			res.Status = StepSucceeded
			res.Output = output
			log.Debug("step succeeded",
				logging.String(logging.FieldStep, step.ID),
				logging.Int("attempts", res.Attempts))
			return res
		}
		lastErr = err
		log.Warn("step attempt failed",
			logging.String(logging.FieldStep, step.ID),
			logging.Int("attempt", res.Attempts),
			logging.Error(err))
		if !services.IsRetryable(err) {
			break
		}
	}

	res.Status = StepFailed
	res.Err = lastErr
	log.Error("step failed",
		logging.String(logging.FieldStep, step.ID),
		logging.Int("attempts", res.Attempts),
		logging.Error(lastErr))
	return res
}

// attempt runs the action once under the per-attempt timeout. A deadline hit
// comes back tagged ErrTimeout, which IsRetryable treats as retryable.
func (e *Executor) attempt(ctx context.Context, step *dag.Step, in dag.Inputs, timeout time.Duration) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := step.Action(attemptCtx, in)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded {
		return nil, services.Wrap(services.ErrTimeout, "executor", step.ID,
			fmt.Sprintf("attempt exceeded %s", timeout), err)
	}
	return output, err
}

// backoffDelay computes the wait before retrying after failed attempt k:
// base*2^k plus uniform jitter up to half of that, so the wait lies in
// [base*2^k, base*2^k*1.5].
func (e *Executor) backoffDelay(base time.Duration, attempt int) time.Duration {
	exp := float64(base) * float64(int64(1)<<uint(attempt))
	return time.Duration(exp + e.jitter()*exp*0.5)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
