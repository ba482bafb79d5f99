// Package status implements the tagged outcome type threaded through every
// engine path (spec §7). It doubles as a Go error so it composes with
// errors.Is/errors.As and %w the way idiomatic code in this codebase does.
package status

import "fmt"

// Code identifies the broad category of an outcome.
type Code int

const (
	// CodeOK means the operation succeeded.
	CodeOK Code = iota
	CodeNotFound
	CodeCorruption
	CodeIOError
	CodeEmpty
	CodeNotSupported
	CodeInvalidArgument
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeNotFound:
		return "NotFound"
	case CodeCorruption:
		return "Corruption"
	case CodeIOError:
		return "IOError"
	case CodeEmpty:
		return "Empty"
	case CodeNotSupported:
		return "NotSupported"
	case CodeInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Status is the tagged outcome type. The zero value is OK.
type Status struct {
	code Code
	msg  string
}

// OK returns a successful status.
func OK() Status { return Status{code: CodeOK} }

// NotFound builds a NotFound status with msg.
func NotFound(msg string) Status { return Status{code: CodeNotFound, msg: msg} }

// Corruption builds a Corruption status with msg.
func Corruption(msg string) Status { return Status{code: CodeCorruption, msg: msg} }

// IOError builds an IOError status with msg.
func IOError(msg string) Status { return Status{code: CodeIOError, msg: msg} }

// Empty builds an Empty status.
func Empty() Status { return Status{code: CodeEmpty, msg: "empty"} }

// NotSupported builds a NotSupported status with msg.
func NotSupported(msg string) Status { return Status{code: CodeNotSupported, msg: msg} }

// InvalidArgument builds an InvalidArgument status with msg.
func InvalidArgument(msg string) Status { return Status{code: CodeInvalidArgument, msg: msg} }

// Ok reports whether the status represents success.
func (s Status) Ok() bool { return s.code == CodeOK }

// IsNotFound reports whether the status is NotFound.
func (s Status) IsNotFound() bool { return s.code == CodeNotFound }

// IsCorruption reports whether the status is Corruption.
func (s Status) IsCorruption() bool { return s.code == CodeCorruption }

// IsIOError reports whether the status is IOError.
func (s Status) IsIOError() bool { return s.code == CodeIOError }

// IsEmpty reports whether the status is Empty.
func (s Status) IsEmpty() bool { return s.code == CodeEmpty }

// IsNotSupported reports whether the status is NotSupported.
func (s Status) IsNotSupported() bool { return s.code == CodeNotSupported }

// Code returns the status's code.
func (s Status) Code() Code { return s.code }

// Error implements the error interface so Status can flow through normal
// Go error handling (errors.Is, errors.As, fmt.Errorf("%w", st)).
func (s Status) Error() string {
	if s.Ok() {
		return "OK"
	}
	if s.msg == "" {
		return s.code.String()
	}
	return fmt.Sprintf("%s: %s", s.code, s.msg)
}

// FromError wraps a plain error as an IOError status, the policy §7
// assigns to transient driver faults.
func FromError(err error) Status {
	if err == nil {
		return OK()
	}
	return IOError(err.Error())
}
