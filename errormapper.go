package grpcserver

import (
	"context"
	"errors"
)

// ErrorMapper turns any error a handler, the request decoder, or the
// response encoder can produce into the single (Status, message) pair
// that's written as the RPC's terminal trailer. It's consulted exactly
// once per exchange — by HandlerAdapter, immediately before calling
// GrpcExchange.Finish — so every failure path converges on one place
// instead of each call site inventing its own status.
type ErrorMapper struct{}

// NewErrorMapper constructs an ErrorMapper. It carries no state; the zero
// value is ready to use, but the constructor exists for symmetry with the
// rest of the package's constructors and so options can be added later
// without breaking callers.
func NewErrorMapper() *ErrorMapper { return &ErrorMapper{} }

// Map resolves err to a (Status, message) pair using this precedence:
//
//  1. err is nil: StatusOK with no message.
//  2. err is (or wraps) a *Error: its Status and Message are used as-is.
//  3. err is (or wraps) context.DeadlineExceeded or context.Canceled: the
//     matching canonical status.
//  4. err is (or wraps) an *HTTPError: FromHTTPStatus translates its
//     StatusCode.
//  5. err is (or wraps) an *InvalidArgumentError: StatusInvalidArgument.
//  6. anything else: StatusUnknown, with err's message.
func (m *ErrorMapper) Map(err error) (Status, string) {
	if err == nil {
		return StatusOK, ""
	}
	if rpcErr, ok := AsError(err); ok {
		return rpcErr.Status(), rpcErr.Message()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusDeadlineExceeded, err.Error()
	}
	if errors.Is(err, context.Canceled) {
		return StatusCanceled, err.Error()
	}
	if httpErr, ok := asHTTPError(err); ok {
		return FromHTTPStatus(httpErr.StatusCode), httpErr.Message
	}
	if argErr, ok := asInvalidArgumentError(err); ok {
		return StatusInvalidArgument, argErr.Message
	}
	return StatusUnknown, err.Error()
}

// MapRecovered resolves a value recovered from a panic. Handler panics
// are always reported as StatusInternal — a panic is, by definition, a
// bug the handler didn't anticipate, so it can't carry handler-chosen
// status information the way a returned error can.
func (m *ErrorMapper) MapRecovered(recovered any) (Status, string) {
	switch v := recovered.(type) {
	case error:
		return StatusInternal, "panic: " + v.Error()
	case string:
		return StatusInternal, "panic: " + v
	default:
		return StatusInternal, "panic: unknown panic value"
	}
}

func asHTTPError(err error) (*HTTPError, bool) {
	type unwrapper interface{ Unwrap() error }
	for {
		if he, ok := err.(*HTTPError); ok {
			return he, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
		if err == nil {
			return nil, false
		}
	}
}

func asInvalidArgumentError(err error) (*InvalidArgumentError, bool) {
	type unwrapper interface{ Unwrap() error }
	for {
		if ie, ok := err.(*InvalidArgumentError); ok {
			return ie, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
		if err == nil {
			return nil, false
		}
	}
}
