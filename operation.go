package aio

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OpType is the kind of request an operation performs.
type OpType uint8

const (
	OpNoop OpType = iota
	OpCreate
	OpRead
	OpUpdate
	OpDelete
	OpList
	OpCopy
)

func (t OpType) String() string {
	switch t {
	case OpNoop:
		return "NOOP"
	case OpCreate:
		return "CREATE"
	case OpRead:
		return "READ"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpList:
		return "LIST"
	case OpCopy:
		return "COPY"
	default:
		return "UNKNOWN"
	}
}

// ParseOpType converts a case-insensitive type name.
func ParseOpType(s string) (OpType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t := OpNoop; t <= OpCopy; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return OpNoop, false
}

// Status is the lifecycle state of an operation. Pending and Active are
// the only non-terminal statuses.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusSucc
	StatusFailIO
	StatusFailUnknown
	StatusFailAuth
	StatusFailNoSpace
	// StatusFailSize: fewer bytes were readable than the item size.
	StatusFailSize
	// StatusFailCorrupt: bytes read back differ from the expected content.
	StatusFailCorrupt
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusActive:
		return "ACTIVE"
	case StatusSucc:
		return "SUCC"
	case StatusFailIO:
		return "FAIL_IO"
	case StatusFailUnknown:
		return "FAIL_UNKNOWN"
	case StatusFailAuth:
		return "FAIL_AUTH"
	case StatusFailNoSpace:
		return "FAIL_NO_SPACE"
	case StatusFailSize:
		return "FAIL_SIZE"
	case StatusFailCorrupt:
		return "FAIL_CORRUPT"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s != StatusPending && s != StatusActive
}

// IsFailure reports whether s is a terminal failure.
func (s Status) IsFailure() bool {
	return s.IsTerminal() && s != StatusSucc
}

var opSeq atomic.Uint64

// Operation is one request against an Item. It is created PENDING by a
// scheduler, becomes ACTIVE on admission, and reaches a terminal status
// exactly once.
type Operation struct {
	id      uint64
	item    Item
	typ     OpType
	srcPath string
	dstPath string

	mu        sync.Mutex
	status    Status
	err       error
	done      int64
	rangeIdx  int
	admitted  bool
	inFlight  bool
	finalized bool
	reqStart  time.Time
	respStart time.Time
	respEnd   time.Time
}

// NewOperation creates a PENDING operation. An empty srcPath on a CREATE
// or COPY means the content is generated from the item.
func NewOperation(item Item, typ OpType, srcPath, dstPath string) *Operation {
	return &Operation{
		id:      opSeq.Add(1),
		item:    item,
		typ:     typ,
		srcPath: srcPath,
		dstPath: dstPath,
	}
}

func (op *Operation) ID() uint64      { return op.id }
func (op *Operation) Item() Item      { return op.item }
func (op *Operation) Type() OpType    { return op.typ }
func (op *Operation) SrcPath() string { return op.srcPath }
func (op *Operation) DstPath() string { return op.dstPath }

func (op *Operation) Status() Status {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

// Err returns the cause recorded with a failure status.
func (op *Operation) Err() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.err
}

// BytesDone returns the number of bytes transferred so far.
func (op *Operation) BytesDone() int64 {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.done
}

// RangeIndex returns the range currently being verified.
func (op *Operation) RangeIndex() int {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.rangeIdx
}

// Latency returns the time from admission to the end of the response, or
// zero while the operation is not finished.
func (op *Operation) Latency() time.Duration {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.reqStart.IsZero() || op.respEnd.IsZero() {
		return 0
	}
	return op.respEnd.Sub(op.reqStart)
}

// Fail sets a failure status on a non-terminal operation. Openers call it
// for expected failure classes before returning a nil channel. It reports
// whether the status was applied.
func (op *Operation) Fail(status Status, cause error) bool {
	if !status.IsFailure() {
		return false
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status.IsTerminal() {
		return false
	}
	op.status = status
	op.err = cause
	return true
}

// Reset returns a terminal operation to PENDING with no progress so the
// same request can be issued again.
func (op *Operation) Reset() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.status.IsTerminal() {
		return NewOpError("RESET", op.id, ErrCodeIllegalState, "operation "+op.status.String())
	}
	op.status = StatusPending
	op.err = nil
	op.done = 0
	op.rangeIdx = 0
	op.finalized = false
	op.reqStart, op.respStart, op.respEnd = time.Time{}, time.Time{}, time.Time{}
	if op.item != nil {
		op.item.SetPosition(0)
	}
	return nil
}

// markResponse records the response boundaries. Both must be unset and
// the request must have started.
func (op *Operation) markResponse(now time.Time) error {
	if op.reqStart.IsZero() {
		return NewOpError("FINISH", op.id, ErrCodeIllegalState, "response before request start")
	}
	if !op.respStart.IsZero() || !op.respEnd.IsZero() {
		return NewOpError("FINISH", op.id, ErrCodeIllegalState, "response already finished")
	}
	op.respStart = now
	op.respEnd = now
	return nil
}
