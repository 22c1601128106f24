//go:build linux

package uring

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-aio/internal/interfaces"
	"github.com/ehrlich-b/go-aio/internal/logging"
)

// wakeUserData tags the NOP that wakes the reaper on Close. Request IDs
// start at 1.
const wakeUserData = 0

type request struct {
	op opcode
	p  []byte // referenced until the CQE arrives
	h  interfaces.CompletionHandler
}

// Ring is an io_uring instance shared by many channels
type Ring struct {
	ring *giouring.Ring

	mu      sync.Mutex
	pending map[uint64]*request
	nextID  uint64
	closing bool

	slots chan struct{}
	done  chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	deferred  atomic.Uint64

	logger *logging.Logger
}

// NewRing creates the ring and starts its reaper
func NewRing(cfg Config) (*Ring, error) {
	cfg.defaults()
	cfg.Logger.Debug("creating io_uring", "entries", cfg.Entries)

	ring, err := giouring.CreateRing(cfg.Entries)
	if err != nil {
		cfg.Logger.Error("failed to create io_uring", "error", err)
		return nil, fmt.Errorf("create io_uring: %w", err)
	}

	r := &Ring{
		ring:    ring,
		pending: make(map[uint64]*request),
		nextID:  wakeUserData + 1,
		slots:   make(chan struct{}, cfg.Entries),
		done:    make(chan struct{}),
		logger:  cfg.Logger,
	}
	go r.reap()
	return r, nil
}

// submit never blocks the caller. When every slot is taken the request
// waits for one on its own goroutine; completions may be issuing new
// requests from the reaper and must not stall it.
func (r *Ring) submit(op opcode, fd int, p []byte, off int64, h interfaces.CompletionHandler) {
	if len(p) == 0 {
		h.Completed(0)
		return
	}
	select {
	case r.slots <- struct{}{}:
		r.push(op, fd, p, off, h)
	default:
		r.deferred.Add(1)
		go func() {
			r.slots <- struct{}{}
			r.push(op, fd, p, off, h)
		}()
	}
}

func (r *Ring) push(op opcode, fd int, p []byte, off int64, h interfaces.CompletionHandler) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		<-r.slots
		r.failed.Add(1)
		h.Failed(os.ErrClosed)
		return
	}

	sqe := r.ring.GetSQE()
	if sqe == nil {
		// SQ full of prepared entries: flush and retry once
		if _, err := r.ring.Submit(); err != nil {
			r.logger.Warn("io_uring submit failed", "error", err)
		}
		sqe = r.ring.GetSQE()
	}
	if sqe == nil {
		r.mu.Unlock()
		<-r.slots
		r.failed.Add(1)
		h.Failed(os.NewSyscallError(op.String(), syscall.EBUSY))
		return
	}

	id := r.nextID
	r.nextID++
	r.pending[id] = &request{op: op, p: p, h: h}

	addr := uintptr(unsafe.Pointer(&p[0]))
	switch op {
	case opRead:
		sqe.PrepareRead(fd, addr, uint32(len(p)), uint64(off))
	case opWrite:
		sqe.PrepareWrite(fd, addr, uint32(len(p)), uint64(off))
	}
	sqe.UserData = id

	if _, err := r.ring.Submit(); err != nil {
		// the entry stays in the SQ and goes out with the next submit
		r.logger.Warn("io_uring submit failed", "error", err, "pending", len(r.pending))
	}
	r.mu.Unlock()
	r.submitted.Add(1)
}

func (r *Ring) reap() {
	defer close(r.done)
	woken := false
	for {
		cqe, err := r.ring.WaitCQE()
		if err == unix.EINTR || err == unix.EAGAIN || err == unix.ETIME {
			continue
		}
		if err != nil {
			r.logger.Error("io_uring wait failed", "error", err)
			r.failPending(err)
			return
		}

		id, res := cqe.UserData, cqe.Res
		r.ring.CQESeen(cqe)

		r.mu.Lock()
		req := r.pending[id]
		delete(r.pending, id)
		drained := r.closing && len(r.pending) == 0
		r.mu.Unlock()

		if id == wakeUserData {
			woken = true
		} else {
			<-r.slots
		}
		if req != nil {
			r.deliver(req, res)
		}
		if woken && drained {
			return
		}
	}
}

func (r *Ring) deliver(req *request, res int32) {
	if res < 0 {
		r.failed.Add(1)
		req.h.Failed(os.NewSyscallError(req.op.String(), syscall.Errno(-res)))
		return
	}
	r.completed.Add(1)
	req.h.Completed(int(res))
}

func (r *Ring) failPending(err error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[uint64]*request)
	r.closing = true
	r.mu.Unlock()
	for _, req := range pending {
		r.failed.Add(1)
		req.h.Failed(err)
	}
}

// Stats returns ring counters
func (r *Ring) Stats() map[string]int64 {
	r.mu.Lock()
	inflight := len(r.pending)
	r.mu.Unlock()
	return map[string]int64{
		"submitted": int64(r.submitted.Load()),
		"completed": int64(r.completed.Load()),
		"failed":    int64(r.failed.Load()),
		"deferred":  int64(r.deferred.Load()),
		"inflight":  int64(inflight),
	}
}

// Close waits for in-flight requests, stops the reaper and tears the ring
// down. Requests submitted after Close fail with os.ErrClosed.
func (r *Ring) Close() error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closing = true
	sqe := r.ring.GetSQE()
	if sqe == nil {
		if _, err := r.ring.Submit(); err != nil {
			r.logger.Warn("io_uring submit failed", "error", err)
		}
		sqe = r.ring.GetSQE()
	}
	if sqe == nil {
		r.mu.Unlock()
		return fmt.Errorf("uring: no submission entry for shutdown")
	}
	sqe.PrepareNop()
	sqe.UserData = wakeUserData
	_, err := r.ring.Submit()
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("uring: submit shutdown: %w", err)
	}

	<-r.done
	r.ring.QueueExit()
	r.logger.Debug("io_uring closed", "submitted", r.submitted.Load(), "completed", r.completed.Load())
	return nil
}
