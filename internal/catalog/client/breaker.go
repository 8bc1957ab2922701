package client

import (
	"errors"
	"sync"
	"time"

	"github.com/tair/product-console/pkg/logger"
)

// ErrBreakerOpen is returned without calling the backend while the breaker is open
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState represents the state of a circuit breaker
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Blocking requests
	StateHalfOpen BreakerState = "half-open" // Probing whether the backend recovered
)

// halfOpenSuccesses is how many probes must pass before the breaker closes again
const halfOpenSuccesses = 3

// Breaker guards the catalog backend. Only failures the caller marks as
// breaker-relevant (transport errors, 5xx) are counted.
type Breaker struct {
	name            string
	maxFailures     int
	timeout         time.Duration
	state           BreakerState
	failures        int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
	now             func() time.Time
	mu              sync.Mutex
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, maxFailures int, timeout time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	b := &Breaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		state:       StateClosed,
		now:         time.Now,
	}
	b.lastStateChange = b.now()
	return b
}

// Call executes fn with breaker protection
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen && b.now().Sub(b.lastStateChange) > b.timeout {
		b.state = StateHalfOpen
		b.successCount = 0
		logger.Logger.Info().
			Str("circuit", b.name).
			Msg("Circuit breaker transitioning to half-open")
	}
	current := b.state
	b.mu.Unlock()

	if current == StateOpen {
		return ErrBreakerOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	return err
}

func (b *Breaker) onFailure() {
	b.failures++
	b.lastFailureTime = b.now()

	switch {
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.lastStateChange = b.now()
		logger.Logger.Warn().
			Str("circuit", b.name).
			Msg("Circuit breaker reopened after half-open failure")
	case b.failures >= b.maxFailures:
		b.state = StateOpen
		b.lastStateChange = b.now()
		logger.Logger.Error().
			Str("circuit", b.name).
			Int("failures", b.failures).
			Int("threshold", b.maxFailures).
			Msg("Circuit breaker opened")
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= halfOpenSuccesses {
			b.state = StateClosed
			b.failures = 0
			b.successCount = 0
			b.lastStateChange = b.now()
			logger.Logger.Info().
				Str("circuit", b.name).
				Msg("Circuit breaker closed after successful recovery")
		}
	case StateClosed:
		b.failures = 0
	}
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns breaker statistics for the readiness endpoint
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"name":              b.name,
		"state":             b.state,
		"failures":          b.failures,
		"max_failures":      b.maxFailures,
		"last_failure_time": b.lastFailureTime,
		"last_state_change": b.lastStateChange,
	}
}
