package binder

import (
	"errors"
	"syscall"
	"testing"

	"github.com/vela-os/binder/internal/status"
)

func TestStructuredError(t *testing.T) {
	err := NewError("Transact", status.BadValue, "invalid argument count")

	if err.Op != "Transact" {
		t.Errorf("Expected Op=Transact, got %s", err.Op)
	}
	if err.Code != status.BadValue {
		t.Errorf("Expected Code=BadValue, got %s", err.Code)
	}

	expected := "binder: invalid argument count (op=Transact)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("StartThreadPool", status.PermissionDenied, syscall.EPERM)

	if err.Errno != syscall.EPERM {
		t.Errorf("Expected Errno=EPERM, got %v", err.Errno)
	}
	if err.Code != status.PermissionDenied {
		t.Errorf("Expected Code=PermissionDenied, got %s", err.Code)
	}
}

func TestHandleError(t *testing.T) {
	err := NewHandleError("CheckInterface", 123, status.BadType, "descriptor mismatch")

	if err.Handle != 123 {
		t.Errorf("Expected Handle=123, got %d", err.Handle)
	}

	expected := "binder: descriptor mismatch (op=CheckInterface)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	inner := syscall.ENOENT
	err := WrapError("GetService", inner)

	if err.Code != status.NameNotFound {
		t.Errorf("Expected Code=NameNotFound, got %s", err.Code)
	}
	if err.Errno != syscall.ENOENT {
		t.Errorf("Expected Errno=ENOENT, got %v", err.Errno)
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Error("Expected wrapped error to satisfy errors.Is for ENOENT")
	}
}

func TestErrorIsComparesByCode(t *testing.T) {
	a := NewError("Transact", status.DeadObject, "peer gone")
	b := &Error{Code: status.DeadObject}
	c := &Error{Code: status.BadValue}

	if !errors.Is(a, b) {
		t.Error("errors matching on Code should satisfy errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("errors with different Code should not satisfy errors.Is")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("Transact", status.TimedOut, "operation timed out")

	if !IsCode(err, status.TimedOut) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, status.BadValue) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, status.TimedOut) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestIsErrno(t *testing.T) {
	err := NewErrorWithErrno("Transact", status.UnknownError, syscall.EIO)

	if !IsErrno(err, syscall.EIO) {
		t.Error("IsErrno should return true for matching errno")
	}
	if IsErrno(err, syscall.EPERM) {
		t.Error("IsErrno should return false for non-matching errno")
	}
	if IsErrno(nil, syscall.EIO) {
		t.Error("IsErrno should return false for nil error")
	}
}

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		errno    syscall.Errno
		expected status.Status
	}{
		{syscall.ENOENT, status.NameNotFound},
		{syscall.EBUSY, status.AlreadyExists},
		{syscall.EINVAL, status.BadValue},
		{syscall.EPERM, status.PermissionDenied},
		{syscall.ENOMEM, status.NoMemory},
		{syscall.ETIMEDOUT, status.TimedOut},
		{syscall.ENOSYS, status.InvalidOperation},
	}

	for _, tc := range testCases {
		code := mapErrnoToStatus(tc.errno)
		if code != tc.expected {
			t.Errorf("mapErrnoToStatus(%v) = %s, want %s", tc.errno, code, tc.expected)
		}
	}
}
