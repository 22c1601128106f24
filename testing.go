package aio

import (
	"context"
	"os"
	"sync"
	"time"
)

// MockScheduler is a Scheduler for tests. It queues continuations in
// memory and records every finished operation.
type MockScheduler struct {
	mu        sync.Mutex
	queue     []*Operation
	done      []*Operation
	resubmits int
	refuse    bool
	notify    chan struct{}
}

// NewMockScheduler creates an empty mock scheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{notify: make(chan struct{}, 1)}
}

// Resubmit implements Scheduler
func (s *MockScheduler) Resubmit(op *Operation) bool {
	s.mu.Lock()
	if s.refuse {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, op)
	s.resubmits++
	s.mu.Unlock()
	s.wake()
	return true
}

// Done implements Scheduler
func (s *MockScheduler) Done(op *Operation) {
	s.mu.Lock()
	s.done = append(s.done, op)
	s.mu.Unlock()
	s.wake()
}

func (s *MockScheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Refuse makes subsequent Resubmit calls fail, simulating a full queue.
func (s *MockScheduler) Refuse(refuse bool) {
	s.mu.Lock()
	s.refuse = refuse
	s.mu.Unlock()
}

// Resubmits returns how many continuations were accepted.
func (s *MockScheduler) Resubmits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resubmits
}

// Completed returns the finished operations in completion order.
func (s *MockScheduler) Completed() []*Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Operation(nil), s.done...)
}

// Pending returns the queued continuations without removing them.
func (s *MockScheduler) Pending() []*Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Operation(nil), s.queue...)
}

// Run submits ops to d, retrying refused admissions and resubmitting
// continuations, until every op is finished or ctx is done.
func (s *MockScheduler) Run(ctx context.Context, d *Driver, ops []*Operation) error {
	s.mu.Lock()
	target := len(s.done) + len(ops)
	s.mu.Unlock()

	pending := ops
	for {
		s.mu.Lock()
		finished := len(s.done)
		cont := s.queue
		s.queue = nil
		s.mu.Unlock()

		if finished >= target {
			return nil
		}

		for _, op := range cont {
			if _, err := d.Submit(ctx, op); err != nil {
				return err
			}
		}
		if len(pending) > 0 {
			n, err := d.SubmitBatch(ctx, pending, 0, len(pending))
			if err != nil {
				return err
			}
			pending = pending[n:]
		}

		if len(cont) == 0 {
			select {
			case <-s.notify:
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// MockChannel is an in-memory Channel for tests. Completions run inline
// unless Async is set; Hold defers them until Flush.
type MockChannel struct {
	mu          sync.Mutex
	data        []byte
	open        bool
	maxTransfer int
	async       bool
	hold        bool
	held        []func()
	failNext    error
	closeErr    error

	readCalls  int
	writeCalls int
	closeCalls int
}

// NewMockChannel creates an open channel over a copy of data.
func NewMockChannel(data []byte) *MockChannel {
	return &MockChannel{data: append([]byte(nil), data...), open: true}
}

// SetMaxTransfer caps the bytes moved per call (0 for no cap).
func (c *MockChannel) SetMaxTransfer(n int) {
	c.mu.Lock()
	c.maxTransfer = n
	c.mu.Unlock()
}

// SetAsync delivers completions on a new goroutine.
func (c *MockChannel) SetAsync(async bool) {
	c.mu.Lock()
	c.async = async
	c.mu.Unlock()
}

// Hold queues completions until Flush is called.
func (c *MockChannel) Hold() {
	c.mu.Lock()
	c.hold = true
	c.mu.Unlock()
}

// Flush delivers held completions and stops holding.
func (c *MockChannel) Flush() int {
	c.mu.Lock()
	held := c.held
	c.held = nil
	c.hold = false
	c.mu.Unlock()
	for _, fn := range held {
		fn()
	}
	return len(held)
}

// FailNext makes the next call fail with err.
func (c *MockChannel) FailNext(err error) {
	c.mu.Lock()
	c.failNext = err
	c.mu.Unlock()
}

// SetCloseError makes Close return err.
func (c *MockChannel) SetCloseError(err error) {
	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()
}

// Bytes returns a copy of the channel contents.
func (c *MockChannel) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data...)
}

// Calls returns the read, write and close call counts.
func (c *MockChannel) Calls() (reads, writes, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readCalls, c.writeCalls, c.closeCalls
}

func (c *MockChannel) deliver(fn func()) {
	switch {
	case c.hold:
		c.held = append(c.held, fn)
		c.mu.Unlock()
	case c.async:
		c.mu.Unlock()
		go fn()
	default:
		c.mu.Unlock()
		fn()
	}
}

// ReadAt implements Channel
func (c *MockChannel) ReadAt(p []byte, off int64, h CompletionHandler) {
	c.mu.Lock()
	c.readCalls++
	if err := c.failure(); err != nil {
		c.deliver(func() { h.Failed(err) })
		return
	}

	n := 0
	if off < int64(len(c.data)) {
		want := len(p)
		if c.maxTransfer > 0 && want > c.maxTransfer {
			want = c.maxTransfer
		}
		n = copy(p[:want], c.data[off:])
	}
	c.deliver(func() { h.Completed(n) })
}

// WriteAt implements Channel
func (c *MockChannel) WriteAt(p []byte, off int64, h CompletionHandler) {
	c.mu.Lock()
	c.writeCalls++
	if err := c.failure(); err != nil {
		c.deliver(func() { h.Failed(err) })
		return
	}

	n := len(p)
	if c.maxTransfer > 0 && n > c.maxTransfer {
		n = c.maxTransfer
	}
	if end := off + int64(n); end > int64(len(c.data)) {
		grown := make([]byte, end)
		copy(grown, c.data)
		c.data = grown
	}
	copy(c.data[off:], p[:n])
	c.deliver(func() { h.Completed(n) })
}

func (c *MockChannel) failure() error {
	if !c.open {
		return os.ErrClosed
	}
	if err := c.failNext; err != nil {
		c.failNext = nil
		return err
	}
	return nil
}

// IsOpen implements Channel
func (c *MockChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close implements Channel
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if !c.open {
		return os.ErrClosed
	}
	c.open = false
	return c.closeErr
}

var _ Scheduler = (*MockScheduler)(nil)
var _ Channel = (*MockChannel)(nil)
