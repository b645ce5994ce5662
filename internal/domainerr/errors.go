// internal/domainerr/errors.go
package domainerr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable failure category.
type Code string

const (
	CodeInvalidSerialNumber Code = "INVALID_SERIAL_NUMBER"
	CodeInvalidID           Code = "INVALID_ID"
	CodeNotFound            Code = "NOT_FOUND"
	CodeAccessDenied        Code = "ACCESS_DENIED"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeConflict            Code = "CONFLICT"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeInvalidStatus       Code = "INVALID_STATUS"
	CodeInvalidTransition   Code = "INVALID_STATUS_TRANSITION"
	CodePersistence         Code = "PERSISTENCE_ERROR"
	CodeRateLimited         Code = "RATE_LIMITED"
)

// InternalMessage is the only message callers see for unexpected faults.
const InternalMessage = "an unexpected error occurred"

// Sentinels for errors.Is matching. Only the code is compared.
var (
	ErrInvalidSerialNumber = &Error{Code: CodeInvalidSerialNumber}
	ErrInvalidID           = &Error{Code: CodeInvalidID}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrAccessDenied        = &Error{Code: CodeAccessDenied}
	ErrInternal            = &Error{Code: CodeInternal}
	ErrConflict            = &Error{Code: CodeConflict}
	ErrValidation          = &Error{Code: CodeValidation}
)

// Error is a coded domain failure. The wrapped cause is available through
// errors.Unwrap but is never part of Message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new coded error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Internal returns the generic INTERNAL_ERROR, keeping cause for logs.
func Internal(cause error) *Error {
	return Wrap(CodeInternal, InternalMessage, cause)
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is a domain error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or "" when err is not a domain error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
