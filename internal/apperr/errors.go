// Package apperr defines the shared error taxonomy used across the funnel
// engine. It plays the same role the teacher's per-domain errors.go files
// play (backend/internal/domain/analytics/errors.go), generalized into a
// single typed error so every component reports failures the same way
// regardless of transport.
package apperr

import (
	"errors"
	"fmt"
)

// Code is one of the fixed error classes every component reports through.
type Code string

const (
	CodeInvalidSchema          Code = "invalid_schema"
	CodeNotFound               Code = "not_found"
	CodeConflict               Code = "conflict"
	CodeInsufficientPermission Code = "insufficient_permissions"
	CodePayloadTooLarge        Code = "payload_too_large"
	CodeRateLimited            Code = "rate_limited"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal_error"
)

// Error is the shape every public operation returns on failure. It mirrors
// the teacher's handler-level ErrorResponse{Code,Message,Details}, moved
// below the HTTP boundary so it carries no framing dependency.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetail attaches a single structured detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

func newErr(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

func InvalidSchema(msg string, cause error) *Error { return newErr(CodeInvalidSchema, msg, cause) }
func NotFound(msg string) *Error                   { return newErr(CodeNotFound, msg, nil) }
func Conflict(msg string) *Error                   { return newErr(CodeConflict, msg, nil) }
func InsufficientPermission(msg string) *Error {
	return newErr(CodeInsufficientPermission, msg, nil)
}
func PayloadTooLarge(msg string) *Error { return newErr(CodePayloadTooLarge, msg, nil) }
func RateLimited(msg string) *Error     { return newErr(CodeRateLimited, msg, nil) }
func Timeout(msg string, cause error) *Error { return newErr(CodeTimeout, msg, cause) }
func Internal(msg string, cause error) *Error { return newErr(CodeInternal, msg, cause) }

// CodeOf extracts the Code from err, falling back to CodeInternal for
// anything that isn't an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is allows errors.Is(err, apperr.NotFound("")) style comparisons by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}
