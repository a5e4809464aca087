package grpcserver

import (
	"io"
	"net/http"
)

// Request wraps a single decoded message together with the metadata that
// arrived alongside it. It's the argument type for a unary or
// server-streaming handler function.
type Request[T any] struct {
	Msg T

	header InboundMetadata
}

// NewRequest builds a Request around an already-decoded message and its
// inbound metadata.
func NewRequest[T any](msg T, header InboundMetadata) *Request[T] {
	return &Request[T]{Msg: msg, header: header}
}

// Header returns the metadata that arrived with the request.
func (r *Request[T]) Header() InboundMetadata { return r.header }

// Response wraps a handler's return value together with response
// metadata the handler wants sent ahead of the message. HandlerAdapter
// merges Header() into the exchange's outbound metadata immediately
// before writing headers, so mutations made any time before the handler
// returns take effect.
type Response[T any] struct {
	Msg T

	header http.Header
}

// NewResponse wraps msg in a Response with empty headers.
func NewResponse[T any](msg T) *Response[T] {
	return &Response[T]{Msg: msg, header: make(http.Header)}
}

// Header returns the mutable response metadata.
func (r *Response[T]) Header() OutboundMetadata { return NewOutboundMetadata(r.header) }

// ClientStream lets a client-streaming or bidi-streaming handler pull
// decoded request messages one at a time, mirroring the pull-based shape
// of Go's own io.Reader rather than a push callback.
type ClientStream[Req any] struct {
	reader  *MessageReader[Req]
	body    io.Reader
	header  InboundMetadata
	pending []Req
	cur     Req
	buf     []byte
	err     error
	eof     bool
}

func newClientStream[Req any](reader *MessageReader[Req], body io.Reader, header InboundMetadata) *ClientStream[Req] {
	return &ClientStream[Req]{reader: reader, body: body, header: header}
}

// Receive decodes and buffers the next message, returning false once the
// stream is exhausted or an error occurs. Callers must check Err after
// Receive returns false to distinguish a clean end-of-stream from a
// failure.
func (s *ClientStream[Req]) Receive() bool {
	if s.err != nil {
		return false
	}
	for len(s.pending) == 0 {
		if s.eof {
			return false
		}
		if s.buf == nil {
			s.buf = make([]byte, 32*1024)
		}
		n, rerr := s.body.Read(s.buf)
		if n > 0 {
			msgs, ferr := s.reader.Feed(s.buf[:n])
			if ferr != nil {
				s.err = ferr
				return false
			}
			s.pending = append(s.pending, msgs...)
		}
		switch {
		case rerr == io.EOF:
			s.eof = true
			if cerr := s.reader.Close(); cerr != nil {
				s.err = cerr
				return false
			}
		case rerr != nil:
			s.err = wrap(StatusUnknown, rerr)
			return false
		}
	}
	s.cur = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Msg returns the message most recently decoded by Receive.
func (s *ClientStream[Req]) Msg() Req { return s.cur }

// Err returns the error that caused Receive to return false, or nil on a
// clean end-of-stream.
func (s *ClientStream[Req]) Err() error { return s.err }

// RequestHeader returns the metadata that arrived with the request.
func (s *ClientStream[Req]) RequestHeader() InboundMetadata { return s.header }

// ServerStream lets a server-streaming or bidi-streaming handler send
// response messages as they become available.
type ServerStream[Res any] struct {
	exchange *GrpcExchange
	writer   *MessageWriter[Res]
}

func newServerStream[Res any](exchange *GrpcExchange, writer *MessageWriter[Res]) *ServerStream[Res] {
	return &ServerStream[Res]{exchange: exchange, writer: writer}
}

// Send encodes and writes one response message, sending response headers
// first if they haven't been sent yet.
func (s *ServerStream[Res]) Send(msg Res) error {
	framed, err := s.writer.Encode(msg)
	if err != nil {
		return err
	}
	return s.exchange.WriteMessage(framed)
}

// ResponseHeader returns the mutable response metadata. It must be
// mutated before the first call to Send, since Send implicitly flushes
// headers.
func (s *ServerStream[Res]) ResponseHeader() OutboundMetadata { return s.exchange.ResponseMetadata() }

// BidiStream combines ClientStream and ServerStream for a
// bidirectional-streaming RPC. Receive/Send may be interleaved in any
// order the handler chooses; gRPC itself places no ordering requirement
// between the two directions.
type BidiStream[Req, Res any] struct {
	*ClientStream[Req]
	exchange *GrpcExchange
	writer   *MessageWriter[Res]
}

func newBidiStream[Req, Res any](reader *MessageReader[Req], body io.Reader, header InboundMetadata, exchange *GrpcExchange, writer *MessageWriter[Res]) *BidiStream[Req, Res] {
	return &BidiStream[Req, Res]{
		ClientStream: newClientStream(reader, body, header),
		exchange:     exchange,
		writer:       writer,
	}
}

// Send encodes and writes one response message.
func (s *BidiStream[Req, Res]) Send(msg Res) error {
	framed, err := s.writer.Encode(msg)
	if err != nil {
		return err
	}
	return s.exchange.WriteMessage(framed)
}

// ResponseHeader returns the mutable response metadata.
func (s *BidiStream[Req, Res]) ResponseHeader() OutboundMetadata { return s.exchange.ResponseMetadata() }
