package fetcher

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitBreaker halts fetches against a source that keeps failing, so a
// broken or rate-limiting API is not hammered on every scheduled run.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive failures and half-opens after resetTimeout.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// RecordSuccess records a successful fetch
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed fetch. Server errors and 429s count toward
// opening the breaker; client errors do not, since they signal a
// configuration problem rather than an unhealthy upstream.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	if statusCode >= 400 && statusCode < 500 && statusCode != 429 {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.isOpen = true
		logrus.Warnf("CircuitBreaker: open after %d consecutive failures (last status %d), retry after %v",
			cb.consecutiveFailures, statusCode, cb.resetTimeout)
	}
}

// CanProceed checks if fetches are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if time.Since(cb.lastFailureTime) > cb.resetTimeout {
		logrus.Infof("CircuitBreaker: attempting half-open state after %v", cb.resetTimeout)
		cb.isOpen = false
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// IsOpen returns the current breaker state
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen
}
