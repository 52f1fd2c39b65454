package datamodel

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Code is one of the closed taxonomy of error codes a model operation can
// fail with. Replies carry the Code verbatim so a gateway can branch on it
// without parsing Message.
type Code string

// Error codes, see spec §7.
const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeAddressMismatch  Code = "ADDRESS_MISMATCH"
	CodeTypeMismatch     Code = "TYPE_MISMATCH"
	CodeOutOfRange       Code = "OUT_OF_RANGE"
	CodeVetoed           Code = "VETOED"
	CodePostVetoed       Code = "POST_VETOED"
	CodeHookFailed       Code = "HOOK_FAILED"
	CodeUnboundCallback  Code = "UNBOUND_CALLBACK"
	CodeDependencyLost   Code = "DEPENDENCY_LOST"
	CodeCancelled        Code = "CANCELLED"
	CodeMalformedModel   Code = "MALFORMED_MODEL"
	CodeInvalidFilter    Code = "INVALID_FILTER"
)

// Error is the concrete error type returned by every operation in this
// module. It always carries one of the Code constants above.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

var _ error = (*Error)(nil)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/As to reach the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an *Error with no underlying cause.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds an *Error around an underlying cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// AsError unwraps err to the module's *Error type, if it is (or wraps) one.
// Any other non-nil error is wrapped as CodeMalformedModel so a transport
// layer always has a Code to report; nil returns nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var modelErr *Error
	if errors.As(err, &modelErr) {
		return modelErr
	}
	return WrapError(CodeMalformedModel, "unexpected internal error", err)
}

// HasCode reports whether err is (or wraps) a model *Error with the given code.
func HasCode(err error, code Code) bool {
	var modelErr *Error
	if errors.As(err, &modelErr) {
		return modelErr.Code == code
	}
	return false
}

// aggregateErrors combines zero or more per-item errors raised while
// performing a best-effort, non-transactional operation (see ObjectVariable
// field-wise write, spec §4.2). A single failure is returned unwrapped so
// callers checking HasCode still see the original code; two or more are
// aggregated with hashicorp/go-multierror so no failure is silently dropped.
func aggregateErrors(errs map[string]error) error {
	var me *multierror.Error
	count := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		count++
		me = multierror.Append(me, err)
	}
	switch count {
	case 0:
		return nil
	case 1:
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}
	return me.ErrorOrNil()
}
