package otrs

import (
	"errors"
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	CircuitBreakerClosed   CircuitBreakerState = iota // Normal operation
	CircuitBreakerOpen                                // Requests fail fast
	CircuitBreakerHalfOpen                            // Probing whether OTRS recovered
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrCircuitBreakerOpen is returned when the breaker rejects a call.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling OTRS after repeated transport failures.
type CircuitBreaker struct {
	maxFailures      int
	failureThreshold float64
	cooldownPeriod   time.Duration
	successThreshold int
	// isFailure decides which errors count against the breaker.
	isFailure func(error) bool
	now       func() time.Time

	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	totalRequests   int
	lastStateChange time.Time
}

// CircuitBreakerStats is a snapshot of breaker counters.
type CircuitBreakerStats struct {
	State         CircuitBreakerState
	FailureCount  int
	SuccessCount  int
	TotalRequests int
	FailureRate   float64
}

// NewCircuitBreaker creates a breaker that opens after maxFailures failures or once the
// failure rate reaches failureThreshold, and tries again after cooldownPeriod.
// isFailure may be nil, in which case every error counts.
func NewCircuitBreaker(maxFailures int, failureThreshold float64, cooldownPeriod time.Duration, isFailure func(error) bool) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 10
	}
	if failureThreshold <= 0 || failureThreshold > 1 {
		failureThreshold = 0.5
	}
	if cooldownPeriod <= 0 {
		cooldownPeriod = 30 * time.Second
	}
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		maxFailures:      maxFailures,
		failureThreshold: failureThreshold,
		cooldownPeriod:   cooldownPeriod,
		successThreshold: 3,
		isFailure:        isFailure,
		now:              time.Now,
		state:            CircuitBreakerClosed,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitBreakerOpen
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitBreakerOpen {
		return true
	}
	if cb.now().Sub(cb.lastStateChange) < cb.cooldownPeriod {
		return false
	}
	cb.transition(CircuitBreakerHalfOpen)
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	if err != nil && cb.isFailure(err) {
		cb.failureCount++
		failureRate := float64(cb.failureCount) / float64(cb.totalRequests)

		switch {
		case cb.state == CircuitBreakerHalfOpen:
			cb.transition(CircuitBreakerOpen)
		case cb.state == CircuitBreakerClosed && (cb.failureCount >= cb.maxFailures || (cb.totalRequests >= cb.maxFailures && failureRate >= cb.failureThreshold)):
			cb.transition(CircuitBreakerOpen)
		}
		return
	}

	cb.successCount++
	switch cb.state {
	case CircuitBreakerHalfOpen:
		if cb.successCount >= cb.successThreshold {
			cb.transition(CircuitBreakerClosed)
		}
	case CircuitBreakerClosed:
		if cb.successCount > cb.failureCount {
			cb.failureCount = 0
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	cb.state = to
	cb.lastStateChange = cb.now()
	cb.successCount = 0
	if to == CircuitBreakerClosed {
		cb.failureCount = 0
		cb.totalRequests = 0
	}
}

// State returns the current circuit breaker state
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns current circuit breaker statistics
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failureRate := 0.0
	if cb.totalRequests > 0 {
		failureRate = float64(cb.failureCount) / float64(cb.totalRequests)
	}

	return CircuitBreakerStats{
		State:         cb.state,
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		TotalRequests: cb.totalRequests,
		FailureRate:   failureRate,
	}
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitBreakerClosed)
}
