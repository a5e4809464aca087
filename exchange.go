package grpcserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// ExchangeState is a position in the GrpcExchange lifecycle (spec §5).
type ExchangeState int

const (
	// StateInit is the state immediately after construction, before any
	// response metadata has been written.
	StateInit ExchangeState = iota
	// StateHeadersPending means a response write has been requested but
	// headers have not yet reached the transport.
	StateHeadersPending
	// StateHeadersSent means response headers have been flushed; only a
	// terminal transition remains.
	StateHeadersSent
	// StateTrailersOK is terminal: the RPC completed and grpc-status=0 was
	// written.
	StateTrailersOK
	// StateTrailersError is terminal: the RPC completed with a non-OK
	// grpc-status.
	StateTrailersError
	// StateCancelled is terminal: the caller cancelled before a status was
	// written.
	StateCancelled
	// StateReset is terminal: the transport tore down the stream with an
	// HTTP/2 error code before a status was written.
	StateReset
)

func (s ExchangeState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHeadersPending:
		return "HEADERS_PENDING"
	case StateHeadersSent:
		return "HEADERS_SENT"
	case StateTrailersOK:
		return "TRAILERS_OK"
	case StateTrailersError:
		return "TRAILERS_ERROR"
	case StateCancelled:
		return "CANCELLED"
	case StateReset:
		return "RESET"
	default:
		return fmt.Sprintf("ExchangeState(%d)", int(s))
	}
}

// terminal reports whether s has no further transitions.
func (s ExchangeState) terminal() bool {
	switch s {
	case StateTrailersOK, StateTrailersError, StateCancelled, StateReset:
		return true
	default:
		return false
	}
}

// HTTPExchange is the narrow surface this package needs from an HTTP/2
// transport (spec §6: the transport itself is an external collaborator).
// A production adapter wraps an http.ResponseWriter and http.Request; unit
// tests substitute an in-memory fake.
type HTTPExchange interface {
	// Context returns the request's context, cancelled when the client
	// disconnects or the transport tears down the stream.
	Context() context.Context
	// RequestHeader returns the inbound headers.
	RequestHeader() http.Header
	// ResponseHeader returns the mutable outbound header map. Mutating it
	// after WriteHeader has been called on the underlying transport has no
	// effect, which is exactly why GrpcExchange gates writes by state.
	ResponseHeader() http.Header
	// WriteHeader flushes status and the current ResponseHeader snapshot.
	WriteHeader(statusCode int)
	// Write sends response body bytes, implicitly calling WriteHeader(200)
	// first if it hasn't been called yet.
	Write(p []byte) (int, error)
	// WriteTrailer sets a trailer value. The transport is responsible for
	// actually flushing trailers once the handler returns; net/http does
	// this via the http.TrailerPrefix convention.
	WriteTrailer(name, value string)
	// Reset tears the stream down with the given HTTP/2 error code, when
	// the transport supports it. A best-effort adapter may instead just
	// panic with http.ErrAbortHandler; see netHTTPExchange.
	Reset(code HTTP2ErrCode)
}

// ExchangeShape identifies which of the four gRPC RPC shapes an exchange
// implements (spec §5's "shape" concept, named explicitly in the
// glossary).
type ExchangeShape int

const (
	ShapeUnary ExchangeShape = iota
	ShapeClientStream
	ShapeServerStream
	ShapeBidiStream
)

func (s ExchangeShape) String() string {
	switch s {
	case ShapeUnary:
		return "unary"
	case ShapeClientStream:
		return "client-streaming"
	case ShapeServerStream:
		return "server-streaming"
	case ShapeBidiStream:
		return "bidirectional-streaming"
	default:
		return fmt.Sprintf("ExchangeShape(%d)", int(s))
	}
}

// GrpcExchange tracks the lifecycle of a single RPC end to end: one value
// per request, shared between the inbound message stream and the
// handler's outbound writes. It is the single authority for "is it still
// legal to write headers/messages/trailers" (spec §5's metadata-timing
// rules) and for turning every terminal signal — normal completion,
// cancellation, or a transport reset — into exactly one trailer write.
//
// A GrpcExchange is not safe for concurrent use by more than one writer
// goroutine; BidiStream callers that read and write concurrently must
// still serialize their own writes (the read side never touches exchange
// state directly).
type GrpcExchange struct {
	transport HTTPExchange
	shape     ExchangeShape
	service   ServiceName
	method    string
	logger    *zap.Logger

	mu          sync.Mutex
	state       ExchangeState
	cancelCause *Error
}

// NewGrpcExchange constructs a GrpcExchange in StateInit. logger may be
// nil, in which case the exchange logs nothing (spec §4.9: the logging
// hook is optional and must never affect state-machine behavior).
func NewGrpcExchange(transport HTTPExchange, shape ExchangeShape, service ServiceName, method string, logger *zap.Logger) *GrpcExchange {
	if logger == nil {
		logger = defaultLogger()
	}
	return &GrpcExchange{
		transport: transport,
		shape:     shape,
		service:   service,
		method:    method,
		logger:    logger,
	}
}

// State returns the exchange's current state.
func (x *GrpcExchange) State() ExchangeState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Shape returns which of the four RPC shapes this exchange implements.
func (x *GrpcExchange) Shape() ExchangeShape { return x.shape }

// RequestMetadata returns the inbound request headers as a read-only view.
func (x *GrpcExchange) RequestMetadata() InboundMetadata {
	return NewInboundMetadata(x.transport.RequestHeader())
}

// ResponseMetadata returns the outbound response headers as a mutable
// view. Writes after headers have been sent are silently ignored by the
// underlying transport, but WriteHeaders is what actually commits them —
// callers should finish mutating before calling it.
func (x *GrpcExchange) ResponseMetadata() OutboundMetadata {
	return NewOutboundMetadata(x.transport.ResponseHeader())
}

// WriteHeaders transitions INIT -> HEADERS_PENDING -> HEADERS_SENT,
// flushing whatever is currently in ResponseMetadata as HTTP response
// headers with a 200 status (gRPC always uses HTTP 200; failures are
// reported via the grpc-status trailer, not the HTTP status line). It's a
// no-op if headers have already been sent, and returns an error if the
// exchange has already reached a terminal state.
func (x *GrpcExchange) WriteHeaders() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state == StateHeadersSent {
		return nil
	}
	if x.state.terminal() {
		return fmt.Errorf("grpcserver: cannot write headers, exchange is already %s", x.state)
	}
	x.state = StateHeadersPending
	x.transport.WriteHeader(http.StatusOK)
	x.state = StateHeadersSent
	return nil
}

// WriteMessage writes one already-framed message buffer to the response
// body, implicitly sending headers first if they haven't been sent yet.
func (x *GrpcExchange) WriteMessage(framed []byte) error {
	if err := x.WriteHeaders(); err != nil {
		return err
	}
	if _, err := x.transport.Write(framed); err != nil {
		return fmt.Errorf("grpcserver: writing response message: %w", err)
	}
	return nil
}

// Finish writes the terminal trailer for a successful or failed RPC and
// transitions to TRAILERS_OK or TRAILERS_ERROR. It's idempotent: a second
// call after a terminal state has already been reached is a no-op, since
// spec §5 requires every terminal signal to produce exactly one trailer
// write per exchange.
func (x *GrpcExchange) Finish(status Status, message string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state.terminal() {
		return
	}
	if x.state != StateHeadersSent {
		x.transport.WriteHeader(http.StatusOK)
	}
	x.transport.WriteTrailer(headerGrpcStatus, mustMarshalStatus(status))
	if message != "" {
		x.transport.WriteTrailer(headerGrpcMessage, percentEncode(message))
	}
	if status == StatusOK {
		x.state = StateTrailersOK
	} else {
		x.state = StateTrailersError
		x.logger.Warn("grpc exchange finished with a non-OK status",
			zap.String("service", x.service.FullyQualified()),
			zap.String("method", x.method),
			zap.Stringer("status", status),
			zap.String("message", message),
		)
	}
}

// Cancel marks the exchange CANCELLED, the terminal state used when the
// caller's context is done before a status was ever written. It resets
// the HTTP/2 stream with CANCEL and memoizes the cancellation cause. It is
// idempotent and safe to call from a context-done goroutine concurrently
// with a handler still running — whichever of Cancel/Finish/Reset reaches
// the terminal transition first wins, and the rest become no-ops.
func (x *GrpcExchange) Cancel() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state.terminal() {
		return
	}
	x.state = StateCancelled
	x.cancelCause = NewError(StatusCanceled, "")
	x.logger.Debug("grpc exchange cancelled",
		zap.String("service", x.service.FullyQualified()),
		zap.String("method", x.method),
	)
	x.transport.Reset(HTTP2Cancel)
}

// Reset marks the exchange RESET, the terminal state used when the
// transport tears the stream down with an HTTP/2 error code before a
// status was written. It also asks the transport to actually reset the
// stream, and memoizes the cancellation cause by mapping code through
// FromHTTP2Error, falling back to StatusUnknown when the code has no
// status equivalent. Idempotent, same as Cancel.
func (x *GrpcExchange) Reset(code HTTP2ErrCode) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state.terminal() {
		return
	}
	x.state = StateReset
	status, ok := FromHTTP2Error(code)
	if !ok {
		status = StatusUnknown
	}
	x.cancelCause = NewError(status, fmt.Sprintf("stream reset with HTTP/2 error code %v", code))
	x.logger.Warn("grpc exchange reset",
		zap.String("service", x.service.FullyQualified()),
		zap.String("method", x.method),
		zap.Uint32("http2_code", uint32(code)),
	)
	x.transport.Reset(code)
}

// CancelCause returns the memoized Status and message behind a CANCELLED
// or RESET exchange, or ok=false if the exchange hasn't reached either of
// those states.
func (x *GrpcExchange) CancelCause() (status Status, message string, ok bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.cancelCause == nil {
		return 0, "", false
	}
	return x.cancelCause.Status(), x.cancelCause.Message(), true
}

// resetStream asks the transport to reset the stream without touching
// exchange state. Finish already owns the terminal transition for a
// handler failure that maps to StatusCanceled; this lets the adapter
// follow those trailers with the RST_STREAM(CANCEL) spec §4.6 requires
// without overwriting the TRAILERS_ERROR state Finish just recorded.
func (x *GrpcExchange) resetStream(code HTTP2ErrCode) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.transport.Reset(code)
}

// WatchContext blocks until ctx is done, then cancels the exchange if it
// hasn't already reached a terminal state. Callers run this in its own
// goroutine alongside the handler. It returns only once ctx is done; the
// exchange reaching a terminal state does not make it return.
func (x *GrpcExchange) WatchContext(ctx context.Context) {
	<-ctx.Done()
	x.Cancel()
}

func mustMarshalStatus(status Status) string {
	text, err := status.MarshalText()
	if err != nil {
		return "2" // StatusUnknown, in the impossible case status is out of range
	}
	return string(text)
}
