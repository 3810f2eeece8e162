package clients

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RetryConfig defines retry behavior for collector calls
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialBackoff  time.Duration // Initial backoff duration
	MaxBackoff      time.Duration // Maximum backoff duration
	BackoffFactor   float64       // Multiplier for exponential backoff
	Jitter          float64       // Random jitter factor (0-1)
	RetryableErrors []int         // HTTP status codes to retry
}

// DefaultRetryConfig returns the retry configuration used against the collector
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryableErrors: []int{
			http.StatusTooManyRequests,    // 429
			http.StatusBadGateway,         // 502
			http.StatusServiceUnavailable, // 503
			http.StatusGatewayTimeout,     // 504
		},
	}
}

// RetryResult contains the result of a retry operation
type RetryResult struct {
	Attempts      int
	LastError     error
	TotalDuration time.Duration
	RetryAfter    time.Duration // From Retry-After header if present
}

// Retrier handles retry logic with exponential backoff
type Retrier struct {
	config *RetryConfig
}

// NewRetrier creates a new retrier with the given config
func NewRetrier(config *RetryConfig) *Retrier {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &Retrier{config: config}
}

// ShouldRetry determines if a status code or transport error should be retried
func (r *Retrier) ShouldRetry(statusCode int, err error) bool {
	// Network errors carry no status
	if err != nil && statusCode == 0 {
		return true
	}

	for _, code := range r.config.RetryableErrors {
		if statusCode == code {
			return true
		}
	}
	return false
}

// CalculateBackoff calculates the backoff duration for a given attempt
func (r *Retrier) CalculateBackoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > r.config.MaxBackoff {
			return r.config.MaxBackoff
		}
		return retryAfter
	}

	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffFactor, float64(attempt))

	if r.config.Jitter > 0 {
		jitter := backoff * r.config.Jitter * (rand.Float64()*2 - 1)
		backoff += jitter
	}

	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// ParseRetryAfter extracts the Retry-After duration from an HTTP response
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}

	return 0
}

// RetryableResponseFunc is an HTTP operation that can be retried
type RetryableResponseFunc func(ctx context.Context) (*http.Response, error)

// DoHTTP executes an HTTP operation with retry logic. Bodies of responses
// that are retried are drained and closed; the returned response is left
// open for the caller.
func (r *Retrier) DoHTTP(ctx context.Context, fn RetryableResponseFunc) (*http.Response, *RetryResult) {
	result := &RetryResult{}
	startTime := time.Now()

	for attempt := 0; ; attempt++ {
		result.Attempts = attempt + 1
		result.RetryAfter = 0

		resp, err := fn(ctx)
		result.LastError = err

		if err != nil {
			if !r.ShouldRetry(0, err) || attempt >= r.config.MaxRetries || ctx.Err() != nil {
				result.TotalDuration = time.Since(startTime)
				return nil, result
			}
		} else {
			if resp.StatusCode < 300 || !r.ShouldRetry(resp.StatusCode, nil) || attempt >= r.config.MaxRetries {
				result.TotalDuration = time.Since(startTime)
				return resp, result
			}
			result.RetryAfter = ParseRetryAfter(resp)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		backoff := r.CalculateBackoff(attempt, result.RetryAfter)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return nil, result
		case <-timer.C:
		}
	}
}

// CircuitBreaker stops calling the collector after repeated failures
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     int
	successes    int
	state        CircuitState
	lastFailure  time.Time
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        CircuitClosed,
	}
}

// Allow checks if a request should be allowed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.successes = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return cb.successes < cb.halfOpenMax
	}
	return false
}

// RecordSuccess records a successful operation
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.state = CircuitClosed
			cb.failures = 0
		}
	} else {
		cb.failures = 0
	}
}

// RecordFailure records a failed operation. A failure while half-open
// reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
