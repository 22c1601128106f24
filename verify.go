package aio

import (
	"context"
	"errors"

	"github.com/ehrlich-b/go-aio/internal/queue"
)

// readVerify drives READ and UPDATE. A fully new item is read in chunks
// and each chunk is verified as a whole. An updated item is read at most
// up to the next range boundary so every verified slice lies inside a
// single range.
func (d *Driver) readVerify(ctx context.Context, op *Operation) error {
	src, err := d.openSource(ctx, op)
	if err != nil {
		return err
	}
	if src == nil {
		op.Fail(StatusFailIO, NewOpError("OPEN_SRC", op.id, ErrCodeIOError, "no channel to read "+op.item.Name()))
		d.finalize(op)
		return nil
	}

	size := op.item.Size()
	ranged := d.params.Verify && op.item.Updated()

	op.mu.Lock()
	off := op.done
	limit := size - off
	if ranged {
		if RangeOffset(op.rangeIdx) > off || RangeOffset(op.rangeIdx+1) <= off {
			op.rangeIdx = RangeIndex(off)
		}
		if end := RangeOffset(op.rangeIdx + 1); end-off < limit {
			limit = end - off
		}
	}
	op.mu.Unlock()

	if limit <= 0 {
		d.finalize(op)
		return nil
	}

	buf := queue.GetBuffer(d.chunk(limit))
	src.ReadAt(buf, off, &step{kind: stepRead, d: d, op: op, buf: buf, off: off, ranged: ranged})
	return nil
}

func (d *Driver) completeRead(s *step, n int) {
	op := s.op
	defer queue.PutBuffer(s.buf)

	if n <= 0 {
		err := &SizeError{Expected: op.item.Size(), Actual: s.off}
		op.Fail(StatusFailSize, err)
		d.logger.Warn("item shorter than expected", "op_id", op.id, "item", op.item.Name(),
			"expected", err.Expected, "actual", err.Actual)
		d.finalize(op)
		return
	}

	if d.params.Verify {
		if err := op.item.Verify(s.buf[:n], s.off); err != nil {
			d.verifyFailed(op, err)
			d.finalize(op)
			return
		}
	}
	d.advance(op, int64(n), s.ranged)
}

// verifyFailed records a content mismatch and points the range index at
// the range holding the first differing byte.
func (d *Driver) verifyFailed(op *Operation, err error) {
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		op.Fail(StatusFailUnknown, err)
		return
	}

	op.mu.Lock()
	op.rangeIdx = ce.Range()
	op.mu.Unlock()
	op.Fail(StatusFailCorrupt, err)
	d.logger.Warn("content mismatch", "op_id", op.id, "item", op.item.Name(),
		"offset", ce.Offset, "range", ce.Range())
}
