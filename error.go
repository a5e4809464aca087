package grpcserver

import (
	"errors"
	"fmt"
)

// Error is the only value that crosses the codec/handler boundary on the
// error side. Every other error kind — an HTTP-layer failure, an argument
// validation failure, a generic Go error from user code — is lifted into
// an Error at the adapter boundary (see ErrorMapper) before it can reach a
// trailer.
type Error struct {
	status  Status
	message string
	cause   error
}

// NewError constructs an Error with status and message. message is sent
// verbatim in the grpc-message trailer, so callers must not include
// anything they wouldn't want a client to see.
func NewError(status Status, message string) *Error {
	return &Error{status: status, message: message}
}

// errorf builds an Error whose message is formatted with fmt.Errorf
// semantics; a %w verb can wrap an underlying cause for errors.Is/As.
func errorf(status Status, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{status: status, message: err.Error(), cause: errors.Unwrap(err)}
}

// wrap lifts a generic error into an Error at the given status, preserving
// it as the Unwrap cause.
func wrap(status Status, err error) *Error {
	if err == nil {
		return nil
	}
	if re, ok := AsError(err); ok {
		return re
	}
	return &Error{status: status, message: err.Error(), cause: err}
}

// Status returns the gRPC status this error maps to.
func (e *Error) Status() Status { return e.status }

// Message returns the text that belongs in the grpc-message trailer.
func (e *Error) Message() string { return e.message }

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.status, e.message)
}

// Unwrap exposes the underlying cause, if any, so errors.Is and errors.As
// see through an Error to whatever triggered it.
func (e *Error) Unwrap() error { return e.cause }

// AsError reports whether err is (or wraps) a *Error, following the same
// chain errors.As would.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// HTTPError represents a failure that occurred at the HTTP layer before
// (or instead of) producing a gRPC status — for example, a reverse proxy
// returning a raw HTTP error code. ErrorMapper maps it via FromHTTPStatus.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// InvalidArgumentError marks a failure as an argument-validation problem.
// ErrorMapper gives these StatusInvalidArgument when they aren't already a
// *Error or *HTTPError.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return e.Message }
