// Package status defines the integer status vocabulary shared by every layer of the
// binder runtime, from parcel primitive reads up through the service-manager broker.
package status

import "fmt"

// Status is the stable integer status code returned by (almost) every public
// operation in the runtime. Zero (OK) means success; all other values are negative
// to mirror the driver's own errno-style convention.
type Status int32

const (
	OK                Status = 0
	UnknownError      Status = -1
	NoMemory          Status = -12 // ENOMEM
	InvalidOperation  Status = -2
	BadValue          Status = -3
	BadType           Status = -4
	NameNotFound      Status = -5
	PermissionDenied  Status = -6
	NoInit            Status = -7
	AlreadyExists     Status = -8
	DeadObject        Status = -9
	FailedTransaction Status = -10
	UnknownTransaction Status = -11
	FDSNotAllowed     Status = -13
	UnexpectedNull    Status = -14
	WouldBlock        Status = -15
	TimedOut          Status = -16
	NotEnoughData     Status = -17
)

var names = map[Status]string{
	OK:                 "OK",
	UnknownError:       "UNKNOWN_ERROR",
	NoMemory:           "NO_MEMORY",
	InvalidOperation:   "INVALID_OPERATION",
	BadValue:           "BAD_VALUE",
	BadType:            "BAD_TYPE",
	NameNotFound:       "NAME_NOT_FOUND",
	PermissionDenied:   "PERMISSION_DENIED",
	NoInit:             "NO_INIT",
	AlreadyExists:      "ALREADY_EXISTS",
	DeadObject:         "DEAD_OBJECT",
	FailedTransaction:  "FAILED_TRANSACTION",
	UnknownTransaction: "UNKNOWN_TRANSACTION",
	FDSNotAllowed:      "FDS_NOT_ALLOWED",
	UnexpectedNull:     "UNEXPECTED_NULL",
	WouldBlock:         "WOULD_BLOCK",
	TimedOut:           "TIMED_OUT",
	NotEnoughData:      "NOT_ENOUGH_DATA",
}

// String implements fmt.Stringer so statuses print as their symbolic name.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// Error implements the error interface so a Status can be returned and compared
// directly with errors.Is against another Status value.
func (s Status) Error() string {
	return s.String()
}

// IsOK reports whether s represents success.
func (s Status) IsOK() bool {
	return s == OK
}
