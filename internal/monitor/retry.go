package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, fetches pass through
	CircuitOpen                         // Too many failures, fetches fail fast
	CircuitHalfOpen                     // Probing for recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the data source circuit breaker is open
var ErrCircuitOpen = errors.New("data source circuit breaker is open")

// Circuit breaker defaults for the data source
const (
	DefaultBreakerFailures  = 5
	DefaultBreakerSuccesses = 2
	DefaultBreakerCooldown  = 30 * time.Second
)

// CircuitBreaker stops the sampler from hammering a data source that keeps
// timing out. It opens after failureThreshold consecutive failures and lets a
// probe through once openTimeout has passed.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	logger           *slog.Logger
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open and the cooldown
// has not passed yet
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transitionLocked(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful fetch
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transitionLocked(CircuitClosed)
		}
	}
}

// RecordFailure records a failed fetch
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionLocked(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure while probing reopens the circuit
		cb.transitionLocked(CircuitOpen)
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns current counters for logging
func (cb *CircuitBreaker) GetMetrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// transitionLocked must be called with cb.mu held
func (cb *CircuitBreaker) transitionLocked(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.successCount = 0
	if next == CircuitClosed {
		cb.failureCount = 0
	}
	cb.logger.Info("Monitor: circuit breaker state transition",
		"from", prev.String(), "to", next.String(),
		"failures", cb.failureCount, "open_timeout", cb.openTimeout)
}

// RetryPolicy controls how a failing background task is retried
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// retryWithBackoff runs fn until it succeeds, the retries are exhausted, or
// ctx is canceled. Each attempt gets its own timeout; an attempt that ignores
// its context is abandoned when the timeout fires.
func retryWithBackoff(ctx context.Context, logger *slog.Logger, operation string, policy RetryPolicy, fn func(context.Context) error) error {
	var lastErr error
	backoff := policy.InitialBackoff

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		err := runGuarded(attemptCtx, fn)
		cancel()

		if err == nil {
			if attempt > 0 {
				logger.Info("Monitor: task succeeded after retries", "task", operation, "retries", attempt)
			}
			return nil
		}
		lastErr = err

		if attempt == policy.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}

		logger.Warn("Monitor: task failed, retrying",
			"task", operation, "attempt", attempt+1, "attempts", policy.MaxRetries+1,
			"backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %w", types.ErrBackgroundTaskFailed, operation, policy.MaxRetries+1, lastErr)
}

// runGuarded calls fn in its own goroutine, converting a panic into an error
// and returning as soon as ctx is done
func runGuarded(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("did not finish: %w", ctx.Err())
	}
}
