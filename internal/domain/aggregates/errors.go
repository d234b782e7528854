package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies aggregate failures so transports and callers can
// branch without matching message strings.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeIdentityMismatch   ErrorCode = "identity_mismatch"
	CodeInvariantViolation ErrorCode = "invariant_violation"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodeRetryable          ErrorCode = "retryable"
	CodeInternal           ErrorCode = "internal"
)

// Error carries an aggregate failure: the code for dispatch, the operation
// that failed, and optional structured details for the caller (field
// violations, the conflicting session id).
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if op := strings.TrimSpace(e.Op); op != "" {
		b.WriteString(op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(msg)
	}
	if b.Len() == 0 {
		return string(e.Code)
	}
	fmt.Fprintf(&b, " (%s)", e.Code)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an aggregate error with explicit code and operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return NewErrorWithDetails(code, op, message, nil, cause)
}

// NewErrorWithDetails is NewError plus structured diagnostics.
func NewErrorWithDetails(code ErrorCode, op, message string, details map[string]any, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Details: details,
		Cause:   cause,
	}
}

// Wrap annotates err with a code and operation, keeping it unwrappable.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func asAggregate(err error) *Error {
	var aggErr *Error
	if errors.As(err, &aggErr) {
		return aggErr
	}
	return nil
}

// IsCode reports whether err carries the given aggregate code.
func IsCode(err error, code ErrorCode) bool {
	e := asAggregate(err)
	return e != nil && e.Code == code
}

// CodeOf extracts the aggregate code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	if e := asAggregate(err); e != nil {
		return e.Code
	}
	return ""
}

// DetailsOf extracts structured diagnostics, or nil for foreign errors.
func DetailsOf(err error) map[string]any {
	if e := asAggregate(err); e != nil {
		return e.Details
	}
	return nil
}
