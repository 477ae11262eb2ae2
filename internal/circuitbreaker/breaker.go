package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitBreaker trips after threshold failures inside window and stays open
// for resetTimeout before letting calls through again.
type CircuitBreaker struct {
	name          string
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	now           func() time.Time
	logger        *zap.Logger
	mu            sync.Mutex
}

// New creates a breaker. A threshold <= 0 disables it.
func New(name string, threshold int, window, resetTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		name:          name,
		enabled:       threshold > 0,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		now:           time.Now,
		logger:        logger,
	}
}

// RecordFailure records a failure and reports whether the circuit is now open.
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.resetTimeout {
			return true
		}
		cb.tripped = false
		cb.failureCount = 0
	}
	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		cb.logger.Warn("circuit breaker tripped",
			zap.String("breaker", cb.name),
			zap.Int("failures", cb.failureCount),
			zap.Duration("reset_after", cb.resetTimeout))
		return true
	}
	return false
}

// RecordSuccess clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
}

// IsOpen returns true while the circuit is tripped. Once the reset timeout has
// elapsed the breaker closes and the next call is allowed through.
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
		cb.logger.Info("circuit breaker reset", zap.String("breaker", cb.name))
		return false
	}
	return cb.tripped
}

func (cb *CircuitBreaker) Name() string { return cb.name }
