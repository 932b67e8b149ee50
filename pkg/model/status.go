package model

import (
	"errors"
	"fmt"
)

// Code is a transport status code. The values follow the canonical RPC
// code numbering so they round-trip through the wire protocol unchanged.
type Code int32

const (
	OK                 Code = 0
	Cancelled          Code = 1
	Unknown            Code = 2
	InvalidArgument    Code = 3
	DeadlineExceeded   Code = 4
	NotFound           Code = 5
	AlreadyExists      Code = 6
	PermissionDenied   Code = 7
	ResourceExhausted  Code = 8
	FailedPrecondition Code = 9
	Aborted            Code = 10
	OutOfRange         Code = 11
	Unimplemented      Code = 12
	Internal           Code = 13
	Unavailable        Code = 14
	DataLoss           Code = 15
	Unauthenticated    Code = 16
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Cancelled:
		return "CANCELLED"
	case Unknown:
		return "UNKNOWN"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case DeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	case NotFound:
		return "NOT_FOUND"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case Aborted:
		return "ABORTED"
	case OutOfRange:
		return "OUT_OF_RANGE"
	case Unimplemented:
		return "UNIMPLEMENTED"
	case Internal:
		return "INTERNAL"
	case Unavailable:
		return "UNAVAILABLE"
	case DataLoss:
		return "DATA_LOSS"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	default:
		return fmt.Sprintf("CODE(%d)", int32(c))
	}
}

// StatusError is an error carrying a transport status code.
type StatusError struct {
	Code    Code
	Message string
}

// NewStatusError creates a StatusError.
func NewStatusError(code Code, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

// Statusf creates a StatusError with a formatted message.
func Statusf(code Code, format string, args ...interface{}) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusCode extracts the status code from err, defaulting to Unknown for
// errors that carry none. A nil error is OK.
func StatusCode(err error) Code {
	if err == nil {
		return OK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return Unknown
}

// IsPermanent reports whether an operation that failed with this code
// would fail the same way if retried.
func IsPermanent(c Code) bool {
	switch c {
	case Cancelled, Unknown, DeadlineExceeded, ResourceExhausted, Internal, Unavailable, Unauthenticated:
		return false
	case InvalidArgument, NotFound, AlreadyExists, PermissionDenied, FailedPrecondition,
		Aborted, OutOfRange, Unimplemented, DataLoss:
		return true
	default:
		return false
	}
}

// IsRetryableTransactionError reports whether a transaction attempt that
// failed with err should be retried. The backend fails outdated reads
// with FAILED_PRECONDITION and conflicting commits with ABORTED; both are
// expected to succeed on a fresh attempt, as is anything transient.
func IsRetryableTransactionError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == Aborted || se.Code == FailedPrecondition || !IsPermanent(se.Code)
}
