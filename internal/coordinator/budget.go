package coordinator

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxConcurrent is the in-flight request limit when none is configured.
const DefaultMaxConcurrent = 4

// Budget bounds the requests all coordinators make against one account.
//
// It combines a weighted semaphore limiting concurrent in-flight requests
// with an optional token bucket limiting request rate. Polls and commands
// both queue on it, in arrival order.
//
// Thread Safety: All methods are safe for concurrent use.
type Budget struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	capacity int
}

// NewBudget creates a request budget.
//
// Parameters:
//   - maxConcurrent: Maximum in-flight requests (<= 0 uses DefaultMaxConcurrent)
//   - requestsPerSecond: Sustained request rate; <= 0 disables rate limiting
//   - burst: Token bucket size (minimum 1)
//
// Returns:
//   - *Budget: Ready to use
func NewBudget(maxConcurrent int, requestsPerSecond float64, burst int) *Budget {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	b := &Budget{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: maxConcurrent,
	}
	if requestsPerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return b
}

// Acquire blocks until a request slot is available.
//
// The returned release func must be called exactly once when the request
// completes. On error nothing is held.
func (b *Budget) Acquire(ctx context.Context) (func(), error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			b.sem.Release(1)
			return nil, fmt.Errorf("waiting for rate limit: %w", err)
		}
	}
	return func() { b.sem.Release(1) }, nil
}

// Capacity returns the maximum number of in-flight requests.
func (b *Budget) Capacity() int {
	return b.capacity
}
