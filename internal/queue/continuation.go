package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Wait once a closed queue has been drained.
var ErrClosed = errors.New("queue: closed")

// Continuation is a bounded FIFO of in-flight work waiting for its next
// invocation. Offer never blocks: a full or closed queue refuses the item
// and the caller decides what a refusal means.
type Continuation[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	closed bool
}

// NewContinuation creates a queue holding at most size items.
func NewContinuation[T any](size int) *Continuation[T] {
	if size <= 0 {
		size = 1
	}
	return &Continuation[T]{ch: make(chan T, size)}
}

// Offer enqueues v, reporting false if the queue is full or closed.
func (q *Continuation[T]) Offer(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Poll dequeues one item without blocking.
func (q *Continuation[T]) Poll() (T, bool) {
	select {
	case v, ok := <-q.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Wait blocks until an item is available, ctx is done, or the queue is
// closed and empty.
func (q *Continuation[T]) Wait(ctx context.Context) (T, error) {
	select {
	case v, ok := <-q.ch:
		if !ok {
			var zero T
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Len returns the number of queued items.
func (q *Continuation[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Continuation[T]) Cap() int {
	return cap(q.ch)
}

// Close refuses further offers. Queued items remain available to Poll
// and Wait.
func (q *Continuation[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
