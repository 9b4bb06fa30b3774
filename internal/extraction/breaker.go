package extraction

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/logging"
)

// ErrCircuitOpen is returned when a call is attempted while the circuit is
// open. Callers should back off rather than retry immediately.
var ErrCircuitOpen = errors.New("circuit open")

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	// Name appears in logs and in ErrCircuitOpen messages.
	Name string
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before allowing
	// half-open probe calls.
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls bounds probe calls while half-open; that many
	// consecutive probe successes close the circuit.
	HalfOpenMaxCalls int

	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker:
//
//	closed    -> open       when consecutive failures reach the threshold
//	open      -> half_open  after the recovery timeout elapses
//	half_open -> closed     when enough probe calls succeed
//	half_open -> open       when a probe call fails
//
// Safe for concurrent use; state transitions are fast in-memory operations.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenMaxCalls int
	logger           *slog.Logger

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	halfOpenCalls int
	lastFailure   time.Time

	now func() time.Time
}

// NewBreaker creates a closed Breaker. Zero settings fall back to a threshold
// of 5, a 60s recovery timeout, and 2 half-open probes.
func NewBreaker(settings BreakerSettings) *Breaker {
	b := &Breaker{
		name:             settings.Name,
		failureThreshold: settings.FailureThreshold,
		recoveryTimeout:  settings.RecoveryTimeout,
		halfOpenMaxCalls: settings.HalfOpenMaxCalls,
		logger:           settings.Logger,
		state:            StateClosed,
		now:              time.Now,
	}
	if b.name == "" {
		b.name = "default"
	}
	if b.failureThreshold < 1 {
		b.failureThreshold = 5
	}
	if b.recoveryTimeout <= 0 {
		b.recoveryTimeout = 60 * time.Second
	}
	if b.halfOpenMaxCalls < 1 {
		b.halfOpenMaxCalls = 2
	}
	if b.logger == nil {
		b.logger = logging.NewNop()
	}
	return b
}

// State returns the current state, transitioning open to half_open when the
// recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a call may proceed. While half-open it admits at most
// HalfOpenMaxCalls probes. A denied call gets ErrCircuitOpen carrying the
// remaining recovery time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls < b.halfOpenMaxCalls {
			b.halfOpenCalls++
			return nil
		}
	}
	remaining := b.recoveryTimeout - b.now().Sub(b.lastFailure)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Errorf("%w: circuit %q open, retry in %s", ErrCircuitOpen, b.name, remaining.Round(time.Second))
}

// RecordSuccess notes a successful call. In the closed state it resets the
// consecutive failure counter; while half-open, enough successes close the
// circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.halfOpenMaxCalls {
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure notes a failed call. A half-open probe failure reopens the
// circuit immediately; in the closed state the circuit opens once consecutive
// failures reach the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.failures >= b.failureThreshold {
			b.transition(StateOpen)
		}
	}
}

// Reset forces the circuit closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

// maybeHalfOpen moves open to half_open once the recovery timeout elapses.
// Caller holds b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
		b.transition(StateHalfOpen)
	}
}

// transition performs a state change. Caller holds b.mu.
func (b *Breaker) transition(next State) {
	prev := b.state
	b.state = next

	switch next {
	case StateClosed:
		b.failures = 0
		b.successes = 0
		b.halfOpenCalls = 0
	case StateHalfOpen:
		b.successes = 0
		b.halfOpenCalls = 0
	}

	if prev != next {
		b.logger.Info("circuit state changed",
			logging.String(logging.FieldComponent, "extraction"),
			logging.String("breaker", b.name),
			logging.String("from", string(prev)),
			logging.String("to", string(next)),
			logging.Int("failures", b.failures))
	}
}
