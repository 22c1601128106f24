package aio

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ehrlich-b/go-aio/internal/queue"
)

var errNoCause = errors.New("aio: channel failed without a cause")

// Submit admits or continues an operation and issues at most one I/O call
// for it.
//
// A PENDING operation takes a throttle permit first; when none is free
// Submit returns false and leaves the operation untouched. An ACTIVE
// operation is a continuation and proceeds directly. Terminal operations
// are reported as done (true) without further action.
//
// A non-nil error means the call was interrupted (ctx) or the driver is
// closed. An operation admitted by this call is returned to PENDING and
// its permit released before the error is returned. A continuation
// submitted after Close is finalized FAIL_IO.
func (d *Driver) Submit(ctx context.Context, op *Operation) (bool, error) {
	if d.closed.Load() {
		d.abandon(op)
		return false, ErrDriverClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	op.mu.Lock()
	switch op.status {
	case StatusPending:
		if !d.throttle.TryAcquire() {
			op.mu.Unlock()
			d.observer.ObserveAdmission(false, d.throttle.Held())
			return false, nil
		}
		op.status = StatusActive
		op.admitted = true
		op.inFlight = true
		if op.reqStart.IsZero() {
			op.reqStart = time.Now()
		}
		op.mu.Unlock()
		d.observer.ObserveAdmission(true, d.throttle.Held())

	case StatusActive:
		if op.inFlight {
			op.mu.Unlock()
			d.logger.Debug("operation already has an I/O call in flight", "op_id", op.id)
			return true, nil
		}
		op.inFlight = true
		op.mu.Unlock()

	default:
		op.mu.Unlock()
		return true, nil
	}

	if err := d.dispatch(ctx, op); err != nil {
		d.rollback(op)
		return false, err
	}
	return true, nil
}

// SubmitBatch submits ops[from:to] in order and stops at the first
// operation that is not admitted. It returns how many were admitted; the
// operations after them are untouched.
func (d *Driver) SubmitBatch(ctx context.Context, ops []*Operation, from, to int) (int, error) {
	if from < 0 {
		from = 0
	}
	if to > len(ops) {
		to = len(ops)
	}

	n := 0
	for i := from; i < to; i++ {
		ok, err := d.Submit(ctx, ops[i])
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

func (d *Driver) dispatch(ctx context.Context, op *Operation) error {
	switch op.typ {
	case OpNoop:
		d.finalize(op)
		return nil
	case OpCreate, OpCopy:
		return d.transfer(ctx, op)
	case OpRead, OpUpdate:
		return d.readVerify(ctx, op)
	default:
		op.Fail(StatusFailUnknown, NewOpError("DISPATCH", op.id, ErrCodeNotSupported,
			op.typ.String()+" is not handled by the I/O engine"))
		d.finalize(op)
		return nil
	}
}

// chunk bounds one I/O invocation.
func (d *Driver) chunk(remaining int64) int {
	if remaining > int64(d.params.ChunkSize) {
		return d.params.ChunkSize
	}
	return int(remaining)
}

func (d *Driver) openDestination(ctx context.Context, op *Operation) (Channel, error) {
	if ch := d.cache.destination(op.id); ch != nil {
		return ch, nil
	}
	ch, err := d.opener.OpenDestination(ctx, op)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		d.openFailed(op, "OPEN_DST")
		return nil, nil
	}
	d.cache.putDestination(op.id, ch)
	return ch, nil
}

func (d *Driver) openSource(ctx context.Context, op *Operation) (Channel, error) {
	if ch, ok := d.cache.source(op.id); ok {
		return ch, nil
	}
	ch, err := d.opener.OpenSource(ctx, op)
	if err != nil {
		return nil, err
	}
	if ch == nil && op.Status() != StatusActive {
		d.openFailed(op, "OPEN_SRC")
		return nil, nil
	}
	d.cache.putSource(op.id, ch)
	return ch, nil
}

func (d *Driver) openFailed(op *Operation, step string) {
	op.Fail(StatusFailUnknown, NewOpError(step, op.id, ErrCodeIllegalState, "opener returned no channel and no status"))
	d.logger.Debug("channel open failed", "op_id", op.id, "step", step,
		"status", op.Status().String(), "error", op.Err())
}

// transfer drives CREATE (generated content) and COPY (source channel).
// The destination is always opened first.
func (d *Driver) transfer(ctx context.Context, op *Operation) error {
	dst, err := d.openDestination(ctx, op)
	if err != nil {
		return err
	}
	if dst == nil {
		d.finalize(op)
		return nil
	}

	src, err := d.openSource(ctx, op)
	if err != nil {
		return err
	}
	if src == nil && op.Status() != StatusActive {
		d.finalize(op)
		return nil
	}

	off, size := op.BytesDone(), op.item.Size()
	if off >= size {
		d.finalize(op)
		return nil
	}

	buf := queue.GetBuffer(d.chunk(size - off))
	if src == nil {
		op.item.Fill(buf, off)
		dst.WriteAt(buf, off, &step{kind: stepWrite, d: d, op: op, buf: buf, off: off})
		return nil
	}
	src.ReadAt(buf, off, &step{kind: stepCopyRead, d: d, op: op, dst: dst, buf: buf, off: off})
	return nil
}

// complete is the single entry point for every I/O completion.
func (d *Driver) complete(s *step, n int, err error) {
	op := s.op
	if err != nil {
		queue.PutBuffer(s.buf)
		d.logger.Debug("I/O failed", "op_id", op.id, "step", s.kind.String(), "offset", s.off, "error", err)
		op.Fail(StatusFailIO, err)
		d.finalize(op)
		return
	}
	if n > len(s.buf) {
		n = len(s.buf)
	}

	switch s.kind {
	case stepCopyRead:
		if n <= 0 {
			queue.PutBuffer(s.buf)
			op.Fail(StatusFailIO, &SizeError{Expected: op.item.Size(), Actual: s.off})
			d.finalize(op)
			return
		}
		// same buffer, same offset
		s.kind = stepCopyWrite
		s.buf = s.buf[:n]
		s.dst.WriteAt(s.buf, s.off, s)

	case stepWrite, stepCopyWrite:
		queue.PutBuffer(s.buf)
		if n <= 0 {
			op.Fail(StatusFailIO, io.ErrShortWrite)
			d.finalize(op)
			return
		}
		d.advance(op, int64(n), false)

	case stepRead:
		d.completeRead(s, n)
	}
}

// advance records n transferred bytes, then either hands the operation
// back to the scheduler or finalizes it. The decision is made under the
// operation lock.
func (d *Driver) advance(op *Operation, n int64, ranged bool) {
	op.mu.Lock()
	if op.finalized {
		op.mu.Unlock()
		return
	}
	if op.status != StatusActive {
		op.mu.Unlock()
		d.finalize(op)
		return
	}

	size := op.item.Size()
	if op.done+n > size {
		n = size - op.done
	}
	op.done += n
	op.item.SetPosition(op.done)
	if ranged && op.done == RangeOffset(op.rangeIdx+1) {
		op.rangeIdx++
	}
	finished := op.done >= size
	if !finished {
		op.inFlight = false
	}
	op.mu.Unlock()

	if finished {
		d.finalize(op)
		return
	}

	d.observer.ObserveContinuation()
	if !d.sched.Resubmit(op) {
		d.lostContinuation(op)
	}
}

func (d *Driver) lostContinuation(op *Operation) {
	err := NewOpError("RESUBMIT", op.id, ErrCodeContinuationLost, "scheduler refused continuation")
	err.Inner = ErrQueueFull
	d.recordError(err)
	d.observer.ObserveLostContinuation()
	d.logger.Error("continuation lost", "op_id", op.id, "op", op.typ.String(), "bytes_done", op.BytesDone())

	op.Fail(StatusFailUnknown, err)
	d.finalize(op)
}

// finalize moves the operation to its terminal status and releases its
// permit and channels. It runs once per operation.
func (d *Driver) finalize(op *Operation) {
	op.mu.Lock()
	if op.finalized {
		op.mu.Unlock()
		return
	}
	op.finalized = true
	op.inFlight = false

	if err := op.markResponse(time.Now()); err != nil {
		if op.status == StatusActive {
			op.status = StatusFailUnknown
			op.err = err
		}
	} else if op.status == StatusActive {
		op.status = StatusSucc
	}
	if op.admitted {
		op.admitted = false
		d.throttle.Release()
	}

	typ, status, done := op.typ, op.status, op.done
	var latency time.Duration
	if !op.reqStart.IsZero() && !op.respEnd.IsZero() {
		latency = op.respEnd.Sub(op.reqStart)
	}
	op.mu.Unlock()

	for _, ch := range d.cache.evict(op.id) {
		if !ch.IsOpen() {
			continue
		}
		if err := ch.Close(); err != nil {
			d.logger.Warn("failed to close channel", "op_id", op.id, "error", err)
		}
	}

	d.observer.ObserveOp(typ, status, uint64(done), uint64(latency))
	d.sched.Done(op)
}

// abandon finalizes a continuation handed back after Close so it releases
// its permit and reaches the scheduler. Pending operations and operations
// with a call in flight are left alone.
func (d *Driver) abandon(op *Operation) {
	op.mu.Lock()
	stranded := op.status == StatusActive && !op.inFlight && !op.finalized
	op.mu.Unlock()
	if !stranded {
		return
	}
	op.Fail(StatusFailIO, NewOpError("SUBMIT", op.id, ErrCodeDriverClosed, "driver closed with operation in progress"))
	d.logger.Warn("operation abandoned on closed driver", "op_id", op.id, "bytes_done", op.BytesDone())
	d.finalize(op)
}

// rollback undoes the admission of an interrupted dispatch.
func (d *Driver) rollback(op *Operation) {
	op.mu.Lock()
	op.inFlight = false
	if op.finalized {
		op.mu.Unlock()
		return
	}
	if op.status == StatusActive {
		if op.admitted {
			op.admitted = false
			d.throttle.Release()
		}
		op.status = StatusPending
		op.mu.Unlock()
		return
	}
	op.mu.Unlock()
	// the opener failed the operation before the interruption
	d.finalize(op)
}

type stepKind uint8

const (
	stepWrite stepKind = iota
	stepCopyRead
	stepCopyWrite
	stepRead
)

func (k stepKind) String() string {
	switch k {
	case stepWrite:
		return "write"
	case stepCopyRead:
		return "copy-read"
	case stepCopyWrite:
		return "copy-write"
	case stepRead:
		return "read"
	default:
		return "unknown"
	}
}

// step is the continuation of one I/O call: what was issued, for which
// operation, with which buffer. A copy step is retagged from read to write
// and reused for the paired write.
type step struct {
	kind   stepKind
	d      *Driver
	op     *Operation
	dst    Channel
	buf    []byte
	off    int64
	ranged bool
}

func (s *step) Completed(n int) {
	s.d.complete(s, n, nil)
}

func (s *step) Failed(err error) {
	if err == nil {
		err = errNoCause
	}
	s.d.complete(s, 0, err)
}

var _ CompletionHandler = (*step)(nil)
