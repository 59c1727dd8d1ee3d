package otrs

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// maxConcurrentLimit caps in-flight requests against a single OTRS instance.
const maxConcurrentLimit = 200

// RequestLimiter bounds both the number of in-flight requests and the request rate.
type RequestLimiter struct {
	slots         *semaphore.Weighted
	rate          *rate.Limiter
	maxConcurrent int

	mu            sync.Mutex
	activeCount   int
	waitCount     int64
	totalAcquired int64
}

// LimiterStats is a snapshot of limiter usage.
type LimiterStats struct {
	MaxConcurrent int
	ActiveCount   int
	WaitCount     int64
	TotalAcquired int64
	Available     int
	RateLimit     float64
}

// NewRequestLimiter creates a limiter. rps <= 0 disables rate limiting.
func NewRequestLimiter(maxConcurrent, rps int) *RequestLimiter {
	if maxConcurrent <= 0 || maxConcurrent > maxConcurrentLimit {
		maxConcurrent = maxConcurrentLimit
	}

	limit := rate.Inf
	burst := 0
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = rps
	}

	return &RequestLimiter{
		slots:         semaphore.NewWeighted(int64(maxConcurrent)),
		rate:          rate.NewLimiter(limit, burst),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire blocks until a request slot and a rate token are available or ctx is done.
func (l *RequestLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.waitCount++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.waitCount--
		l.mu.Unlock()
	}()

	if err := l.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := l.rate.Wait(ctx); err != nil {
		l.slots.Release(1)
		return err
	}

	l.mu.Lock()
	l.activeCount++
	l.totalAcquired++
	l.mu.Unlock()
	return nil
}

// Release frees a slot taken by Acquire.
func (l *RequestLimiter) Release() {
	l.mu.Lock()
	l.activeCount--
	l.mu.Unlock()
	l.slots.Release(1)
}

// Stats returns current statistics.
func (l *RequestLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{
		MaxConcurrent: l.maxConcurrent,
		ActiveCount:   l.activeCount,
		WaitCount:     l.waitCount,
		TotalAcquired: l.totalAcquired,
		Available:     l.maxConcurrent - l.activeCount,
		RateLimit:     float64(l.rate.Limit()),
	}
}

// ValidateLimiterConfig validates concurrency configuration.
func ValidateLimiterConfig(maxConcurrent, rps int) error {
	if maxConcurrent <= 0 {
		return fmt.Errorf("maxConcurrent must be greater than 0")
	}
	if maxConcurrent > maxConcurrentLimit {
		return fmt.Errorf("maxConcurrent cannot exceed %d", maxConcurrentLimit)
	}
	if rps < 0 {
		return fmt.Errorf("rps cannot be negative")
	}
	return nil
}
