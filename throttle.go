package aio

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Throttle bounds how many operations are ACTIVE at once and, optionally,
// how fast new ones are admitted. It never blocks: a refused TryAcquire
// is the backpressure signal to the scheduler.
type Throttle struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	limit   int64
	held    atomic.Int64
}

// NewThrottle creates a throttle with the given concurrency bound. A
// positive opsPerSec additionally limits the admission rate with the
// given burst (at least 1).
func NewThrottle(concurrency int, opsPerSec float64, burst int) *Throttle {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	t := &Throttle{
		sem:   semaphore.NewWeighted(int64(concurrency)),
		limit: int64(concurrency),
	}
	if opsPerSec > 0 {
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(opsPerSec), burst)
	}
	return t
}

// TryAcquire takes one permit if one is free and the rate allows it.
func (t *Throttle) TryAcquire() bool {
	if !t.sem.TryAcquire(1) {
		return false
	}
	if t.limiter != nil && !t.limiter.Allow() {
		t.sem.Release(1)
		return false
	}
	t.held.Add(1)
	return true
}

// Release returns one permit. Releasing more permits than were acquired
// panics.
func (t *Throttle) Release() {
	if t.held.Add(-1) < 0 {
		t.held.Add(1)
		panic("aio: throttle released more permits than acquired")
	}
	t.sem.Release(1)
}

// Held returns the number of permits currently taken.
func (t *Throttle) Held() int64 {
	return t.held.Load()
}

// Limit returns the concurrency bound.
func (t *Throttle) Limit() int64 {
	return t.limit
}
