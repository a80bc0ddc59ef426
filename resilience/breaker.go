package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// State of a circuit breaker
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	}
	return Closed
}

// ErrOpen is matched by every error rejecting an execution on a tripped breaker
var ErrOpen = errors.New("resilience: circuit breaker open")

// OpenError rejects an execution while the breaker is open, or while its half-open
// trial slots are taken
type OpenError struct {
	Name      string
	State     State
	Failures  int
	NextRetry time.Time
}

func (e *OpenError) Error() string {
	if e.State == HalfOpen {
		return fmt.Sprintf("resilience: circuit breaker %s half-open, trial limit reached", e.Name)
	}
	return fmt.Sprintf("resilience: circuit breaker %s open after %d failures, retry at %s",
		e.Name, e.Failures, e.NextRetry.Format(time.RFC3339))
}

func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// CircuitBreaker stops calling a failing operation. It opens after FailureThreshold
// consecutive failures, lets trial executions through once the open timeout has
// passed, and closes again after SuccessThreshold successful trials. A failed trial
// reopens it. The state machine is gobreaker's.
type CircuitBreaker struct {
	settings gobreaker.Settings
	inner    atomic.Pointer[gobreaker.CircuitBreaker]
	resetMx  sync.Mutex

	failureThreshold uint32
	failures         atomic.Uint32
	openedAt         atomic.Int64
	onChange         func(from, to State)
}

type BreakerOption func(*CircuitBreaker)

func WithName(name string) BreakerOption {
	return func(cb *CircuitBreaker) { cb.settings.Name = name }
}

func WithFailureThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.failureThreshold = uint32(n) }
}

// WithSuccessThreshold is the number of trial executions let through while half-open,
// all of which must succeed to close the breaker
func WithSuccessThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.settings.MaxRequests = uint32(n) }
}

// WithOpenTimeout is how long the breaker stays open before trials
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.settings.Timeout = d }
}

// WithCountInterval clears the closed state's failure counts every d. Zero never clears them.
func WithCountInterval(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.settings.Interval = d }
}

// OnStateChange is called synchronously on transitions
func OnStateChange(fn func(from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		settings: gobreaker.Settings{
			Name:        "default",
			MaxRequests: 2,
			Timeout:     30 * time.Second,
		},
		failureThreshold: 5,
	}
	for _, opt := range opts {
		opt(cb)
	}
	if cb.failureThreshold == 0 {
		cb.failureThreshold = 1
	}
	cb.settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures < cb.failureThreshold {
			return false
		}
		cb.failures.Store(counts.ConsecutiveFailures)
		return true
	}
	cb.settings.OnStateChange = func(_ string, from, to gobreaker.State) {
		if to == gobreaker.StateOpen {
			cb.openedAt.Store(time.Now().UnixNano())
			if from == gobreaker.StateHalfOpen {
				cb.failures.Add(1)
			}
		}
		cb.changed(stateOf(from), stateOf(to))
	}
	cb.inner.Store(gobreaker.NewCircuitBreaker(cb.settings))
	return cb
}

func (cb *CircuitBreaker) Name() string {
	return cb.settings.Name
}

func (cb *CircuitBreaker) State() State {
	return stateOf(cb.inner.Load().State())
}

// Reset closes the breaker and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.resetMx.Lock()
	from := cb.State()
	cb.inner.Store(gobreaker.NewCircuitBreaker(cb.settings))
	cb.failures.Store(0)
	cb.resetMx.Unlock()
	cb.changed(from, Closed)
}

func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := cb.inner.Load().Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return &OpenError{
			Name:      cb.settings.Name,
			State:     Open,
			Failures:  int(cb.failures.Load()),
			NextRetry: time.Unix(0, cb.openedAt.Load()).Add(cb.openTimeout()),
		}
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return &OpenError{Name: cb.settings.Name, State: HalfOpen, Failures: int(cb.failures.Load())}
	}
	return err
}

func (cb *CircuitBreaker) openTimeout() time.Duration {
	if cb.settings.Timeout <= 0 {
		return 60 * time.Second
	}
	return cb.settings.Timeout
}

func (cb *CircuitBreaker) changed(from, to State) {
	if from != to && cb.onChange != nil {
		cb.onChange(from, to)
	}
}
