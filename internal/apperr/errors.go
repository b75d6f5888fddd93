// Package apperr defines the error taxonomy shared by the tracking pipeline
// and mapped to protocol error codes at the transport boundary.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Error carries a protocol code alongside the message. Transient marks
// storage-layer hiccups the caller may retry with backoff.
type Error struct {
	Code      Code
	Message   string
	Transient bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a storage-layer failure as a retryable internal error.
func Storage(op string, err error) *Error {
	return &Error{Code: CodeInternal, Message: "storage: " + op, Transient: true, cause: err}
}

// CodeOf extracts the protocol code from err, defaulting to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func IsValidation(err error) bool   { return CodeOf(err) == CodeValidation }
func IsNotFound(err error) bool     { return CodeOf(err) == CodeNotFound }
func IsUnauthorized(err error) bool { return CodeOf(err) == CodeUnauthorized }

func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}
