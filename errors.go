package aio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"syscall"
)

// Error represents a structured engine error with context and errno mapping
type Error struct {
	Op    string        // Step that failed (e.g., "OPEN_DST", "RESUBMIT")
	OpID  uint64        // Operation ID (0 if not applicable)
	Code  ErrorCode     // High-level error category
	Errno syscall.Errno // errno (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.OpID != 0 {
		parts = append(parts, fmt.Sprintf("op_id=%d", e.OpID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("aio: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return "aio: " + msg
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches any *Error carrying the same code, so sentinels compare by
// category.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok || te == nil {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeNotSupported      ErrorCode = "not supported"
	ErrCodeDriverClosed      ErrorCode = "driver closed"
	ErrCodeIllegalState      ErrorCode = "illegal state"
	ErrCodeContinuationLost  ErrorCode = "continuation lost"
	ErrCodeQueueFull         ErrorCode = "queue full"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodePermissionDenied  ErrorCode = "permission denied"
	ErrCodeNotFound          ErrorCode = "not found"
	ErrCodeNoSpace           ErrorCode = "no space left"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeInterrupted       ErrorCode = "interrupted"
	ErrCodeUnknown           ErrorCode = "unknown"
)

// Sentinel errors for errors.Is comparisons
var (
	ErrNotSupported     = &Error{Code: ErrCodeNotSupported}
	ErrDriverClosed     = &Error{Code: ErrCodeDriverClosed}
	ErrIllegalState     = &Error{Code: ErrCodeIllegalState}
	ErrContinuationLost = &Error{Code: ErrCodeContinuationLost}
	ErrInvalidParams    = &Error{Code: ErrCodeInvalidParameters}
	ErrQueueFull        = &Error{Code: ErrCodeQueueFull}
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewOpError creates an error bound to one operation
func NewOpError(op string, opID uint64, code ErrorCode, msg string) *Error {
	return &Error{Op: op, OpID: opID, Code: code, Msg: msg}
}

// WrapError wraps an existing error with engine context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var ae *Error
	if errors.As(inner, &ae) {
		return &Error{
			Op:    op,
			OpID:  ae.OpID,
			Code:  ae.Code,
			Errno: ae.Errno,
			Msg:   ae.Msg,
			Inner: inner,
		}
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   inner.Error(),
			Inner: inner,
		}
	}

	code := ErrCodeUnknown
	if isInterrupt(inner) {
		code = ErrCodeInterrupted
	} else if isIOError(inner) {
		code = ErrCodeIOError
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToCode maps syscall errno to engine error codes
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EPERM, syscall.EACCES, syscall.EROFS:
		return ErrCodePermissionDenied
	case syscall.ENOENT, syscall.ENOTDIR:
		return ErrCodeNotFound
	case syscall.ENOSPC, syscall.EDQUOT, syscall.EFBIG:
		return ErrCodeNoSpace
	case syscall.EINVAL:
		return ErrCodeInvalidParameters
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeNotSupported
	case syscall.EINTR:
		return ErrCodeInterrupted
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Errno == errno
	}
	return false
}

// FreeSpaceFunc reports the bytes available on the volume an error came
// from.
type FreeSpaceFunc func() (uint64, error)

// ClassifyError maps a backend open failure onto an operation status.
// Rules apply in order: permission denial (including a read-only
// filesystem), missing path, capacity
// exhaustion (FAIL_NO_SPACE only when free reports zero bytes), other
// I/O failures, then anything else as FAIL_UNKNOWN.
//
// Interruptions are not statuses: for a context error ClassifyError
// returns the error itself and the caller must propagate it.
func ClassifyError(err error, free FreeSpaceFunc) (Status, error) {
	switch {
	case err == nil:
		return StatusActive, nil
	case isInterrupt(err):
		return StatusActive, err
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EROFS):
		return StatusFailAuth, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return StatusFailIO, nil
	case isCapacity(err):
		if free == nil {
			return StatusFailIO, nil
		}
		avail, ferr := free()
		if ferr == nil && avail == 0 {
			return StatusFailNoSpace, nil
		}
		return StatusFailIO, nil
	case isIOError(err):
		return StatusFailIO, nil
	default:
		return StatusFailUnknown, nil
	}
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isCapacity(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EDQUOT) ||
		errors.Is(err, syscall.EFBIG) ||
		IsCode(err, ErrCodeNoSpace)
}

func isIOError(err error) bool {
	var (
		pe    *fs.PathError
		le    *os.LinkError
		se    *os.SyscallError
		errno syscall.Errno
	)
	switch {
	case errors.As(err, &pe), errors.As(err, &le), errors.As(err, &se), errors.As(err, &errno):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrShortWrite), errors.Is(err, fs.ErrClosed):
		return true
	case IsCode(err, ErrCodeIOError), IsCode(err, ErrCodeNotFound):
		return true
	}
	return false
}
