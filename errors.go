package binder

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/vela-os/binder/internal/status"
)

// Error is a structured failure from a binder operation: it carries the
// operation name, the handle involved (if any), the status code, and,
// when the failure originated at the driver, the errno that produced it.
type Error struct {
	Op     string        // Operation that failed (e.g., "Transact", "AddService")
	Handle int64         // Remote handle involved, -1 if not applicable
	Code   status.Status // High-level status category
	Errno  syscall.Errno // Kernel errno, 0 if not applicable
	Msg    string        // Human-readable message
	Inner  error         // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Handle >= 0 {
		parts = append(parts, fmt.Sprintf("handle=%d", e.Handle))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}

	if len(parts) > 0 {
		return fmt.Sprintf("binder: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("binder: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparison against another *Error by status code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured error with no handle context.
func NewError(op string, code status.Status, msg string) *Error {
	return &Error{Op: op, Handle: -1, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a structured error from a driver-level errno.
func NewErrorWithErrno(op string, code status.Status, errno syscall.Errno) *Error {
	return &Error{Op: op, Handle: -1, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewHandleError creates a structured error naming the remote handle
// involved in the failed operation.
func NewHandleError(op string, handle uint32, code status.Status, msg string) *Error {
	return &Error{Op: op, Handle: int64(handle), Code: code, Msg: msg}
}

// WrapError wraps an existing error with operation context, mapping a bare
// syscall.Errno to its nearest status code.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if be, ok := inner.(*Error); ok {
		return &Error{Op: op, Handle: be.Handle, Code: be.Code, Errno: be.Errno, Msg: be.Msg, Inner: be.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Handle: -1, Code: mapErrnoToStatus(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Handle: -1, Code: status.UnknownError, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToStatus maps a driver-level errno to the status code an
// application caller should see.
func mapErrnoToStatus(errno syscall.Errno) status.Status {
	switch errno {
	case syscall.ENOENT:
		return status.NameNotFound
	case syscall.EBUSY, syscall.EEXIST:
		return status.AlreadyExists
	case syscall.EINVAL, syscall.E2BIG:
		return status.BadValue
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return status.InvalidOperation
	case syscall.EPERM, syscall.EACCES:
		return status.PermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return status.NoMemory
	case syscall.ETIMEDOUT:
		return status.TimedOut
	case syscall.ESRCH, syscall.ECONNREFUSED, syscall.EPIPE:
		return status.DeadObject
	default:
		return status.UnknownError
	}
}

// IsCode reports whether err is (or wraps) a *Error with the given status.
func IsCode(err error, code status.Status) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsErrno reports whether err is (or wraps) a *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Errno == errno
	}
	return false
}
