package extraction

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold, halfOpenMax int, recovery time.Duration) (*Breaker, *time.Time) {
	current := time.Unix(1_700_000_000, 0)
	b := NewBreaker(BreakerSettings{
		Name:             "extraction_api",
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenMaxCalls: halfOpenMax,
	})
	b.now = func() time.Time { return current }
	return b, &current
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 1, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if got := b.State(); got != StateClosed {
			t.Fatalf("state after %d failures = %s, want closed", i+1, got)
		}
	}
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after threshold = %s, want open", got)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow on open circuit = %v, want ErrCircuitOpen", err)
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 1, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %s, non-consecutive failures must not open", got)
	}
}

func TestRecoveryTimeoutAdmitsProbes(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Minute)

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow before recovery = %v", err)
	}

	*clock = clock.Add(time.Minute)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after recovery = %s, want half_open", got)
	}

	// Two probes pass, the third is rejected.
	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d rejected: %v", i+1, err)
		}
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("third probe = %v, want ErrCircuitOpen", err)
	}
}

func TestHalfOpenClosesAfterProbeSuccesses(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Minute)

	b.RecordFailure()
	*clock = clock.Add(time.Minute)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe: %v", err)
	}
	b.RecordSuccess()
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after one probe success = %s, want half_open", got)
	}
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after probe successes = %s, want closed", got)
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow on closed circuit: %v", err)
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Minute)

	b.RecordFailure()
	*clock = clock.Add(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe: %v", err)
	}
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after probe failure = %s, want open", got)
	}
}

func TestReset(t *testing.T) {
	b, _ := newTestBreaker(1, 1, time.Minute)
	b.RecordFailure()
	b.Reset()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after reset = %s, want closed", got)
	}
}
