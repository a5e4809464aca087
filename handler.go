package grpcserver

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const grpcContentType = "application/grpc+proto"

// UnaryFunc implements a unary RPC: exactly one request message in,
// exactly one response message out.
type UnaryFunc[Req, Res any] func(ctx context.Context, req *Request[Req]) (*Response[Res], error)

// ClientStreamFunc implements a client-streaming RPC: any number of
// request messages in, exactly one response message out.
type ClientStreamFunc[Req, Res any] func(ctx context.Context, stream *ClientStream[Req]) (*Response[Res], error)

// ServerStreamFunc implements a server-streaming RPC: exactly one request
// message in, any number of response messages out.
type ServerStreamFunc[Req, Res any] func(ctx context.Context, req *Request[Req], stream *ServerStream[Res]) error

// BidiStreamFunc implements a bidirectional-streaming RPC: any number of
// request and response messages, in whatever order the handler chooses.
type BidiStreamFunc[Req, Res any] func(ctx context.Context, stream *BidiStream[Req, Res]) error

// HandlerAdapter is the single gateway every RPC shape funnels through on
// its way from raw HTTP/2 bytes to a typed Go function call and back
// (spec §6). It negotiates compression, builds the request/response
// message streams, invokes the handler function, and routes every
// failure — a returned error, a handler panic, a decode error, or an
// encode error — through one ErrorMapper so exactly one trailer gets
// written per exchange.
//
// A HandlerAdapter is an http.Handler; register it directly with any
// router (net/http's ServeMux, gin, chi) at the method's path.
type HandlerAdapter struct {
	service ServiceName
	method  string
	shape   ExchangeShape

	codec       Codec
	compressors *CompressorRegistry
	errorMapper *ErrorMapper
	logger      *zap.Logger

	run func(ctx context.Context, exchange *GrpcExchange, inbound, outbound Compressor, body io.Reader, reqHeader InboundMetadata) error
}

type handlerConfig struct {
	codec       Codec
	compressors *CompressorRegistry
	logger      *zap.Logger
}

// HandlerOption configures a HandlerAdapter at construction.
type HandlerOption interface {
	applyToHandler(*handlerConfig)
}

type handlerOptionFunc func(*handlerConfig)

func (f handlerOptionFunc) applyToHandler(c *handlerConfig) { f(c) }

// WithCodec overrides the default protobuf codec. There is ordinarily no
// reason to call this outside of tests, since spec scope excludes
// alternate wire codecs — it exists so MessageReader/MessageWriter's
// behavior can be exercised through the handler with a fake Codec.
func WithCodec(codec Codec) HandlerOption {
	return handlerOptionFunc(func(c *handlerConfig) { c.codec = codec })
}

// WithCompressorRegistry overrides the default compressor registry
// (identity + gzip + deflate).
func WithCompressorRegistry(registry *CompressorRegistry) HandlerOption {
	return handlerOptionFunc(func(c *handlerConfig) { c.compressors = registry })
}

// WithLogger attaches a zap logger to every exchange this handler
// creates. Passing nil is equivalent to not calling WithLogger: the
// handler logs nothing.
func WithLogger(logger *zap.Logger) HandlerOption {
	return handlerOptionFunc(func(c *handlerConfig) { c.logger = logger })
}

func newHandlerConfig(opts []HandlerOption) *handlerConfig {
	cfg := &handlerConfig{
		codec:       NewProtoCodec(nil),
		compressors: NewCompressorRegistry(),
		logger:      defaultLogger(),
	}
	for _, opt := range opts {
		opt.applyToHandler(cfg)
	}
	return cfg
}

// NewUnaryHandler builds a HandlerAdapter for a unary RPC. newReq must
// return a freshly allocated zero-valued Req on every call.
func NewUnaryHandler[Req, Res any](service ServiceName, method string, newReq func() Req, fn UnaryFunc[Req, Res], opts ...HandlerOption) *HandlerAdapter {
	cfg := newHandlerConfig(opts)
	run := func(ctx context.Context, exchange *GrpcExchange, inbound, outbound Compressor, body io.Reader, reqHeader InboundMetadata) error {
		reader := NewMessageReader(newReq, cfg.codec, inbound)
		msgs, err := ReadAllMessages(reader, body)
		if err != nil {
			return err
		}
		if len(msgs) != 1 {
			return NewError(StatusInvalidArgument, fmt.Sprintf("unary RPC requires exactly one request message, got %d", len(msgs)))
		}
		res, err := fn(ctx, NewRequest(msgs[0], reqHeader))
		if err != nil {
			return err
		}
		return sendUnaryResponse(exchange, cfg.codec, outbound, res)
	}
	return newHandlerAdapter(service, method, ShapeUnary, cfg, run)
}

// NewClientStreamHandler builds a HandlerAdapter for a client-streaming
// RPC.
func NewClientStreamHandler[Req, Res any](service ServiceName, method string, newReq func() Req, fn ClientStreamFunc[Req, Res], opts ...HandlerOption) *HandlerAdapter {
	cfg := newHandlerConfig(opts)
	run := func(ctx context.Context, exchange *GrpcExchange, inbound, outbound Compressor, body io.Reader, reqHeader InboundMetadata) error {
		reader := NewMessageReader(newReq, cfg.codec, inbound)
		stream := newClientStream(reader, body, reqHeader)
		res, err := fn(ctx, stream)
		if err != nil {
			return err
		}
		if stream.Err() != nil {
			return stream.Err()
		}
		return sendUnaryResponse(exchange, cfg.codec, outbound, res)
	}
	return newHandlerAdapter(service, method, ShapeClientStream, cfg, run)
}

// NewServerStreamHandler builds a HandlerAdapter for a server-streaming
// RPC.
func NewServerStreamHandler[Req, Res any](service ServiceName, method string, newReq func() Req, fn ServerStreamFunc[Req, Res], opts ...HandlerOption) *HandlerAdapter {
	cfg := newHandlerConfig(opts)
	run := func(ctx context.Context, exchange *GrpcExchange, inbound, outbound Compressor, body io.Reader, reqHeader InboundMetadata) error {
		reader := NewMessageReader(newReq, cfg.codec, inbound)
		msgs, err := ReadAllMessages(reader, body)
		if err != nil {
			return err
		}
		if len(msgs) != 1 {
			return NewError(StatusInvalidArgument, fmt.Sprintf("server-streaming RPC requires exactly one request message, got %d", len(msgs)))
		}
		writer := NewMessageWriter[Res](cfg.codec, outbound)
		stream := newServerStream(exchange, writer)
		return fn(ctx, NewRequest(msgs[0], reqHeader), stream)
	}
	return newHandlerAdapter(service, method, ShapeServerStream, cfg, run)
}

// NewBidiStreamHandler builds a HandlerAdapter for a bidirectional-
// streaming RPC.
func NewBidiStreamHandler[Req, Res any](service ServiceName, method string, newReq func() Req, fn BidiStreamFunc[Req, Res], opts ...HandlerOption) *HandlerAdapter {
	cfg := newHandlerConfig(opts)
	run := func(ctx context.Context, exchange *GrpcExchange, inbound, outbound Compressor, body io.Reader, reqHeader InboundMetadata) error {
		reader := NewMessageReader(newReq, cfg.codec, inbound)
		writer := NewMessageWriter[Res](cfg.codec, outbound)
		stream := newBidiStream[Req, Res](reader, body, reqHeader, exchange, writer)
		return fn(ctx, stream)
	}
	return newHandlerAdapter(service, method, ShapeBidiStream, cfg, run)
}

func sendUnaryResponse[Res any](exchange *GrpcExchange, codec Codec, outbound Compressor, res *Response[Res]) error {
	for name, values := range res.header {
		for _, v := range values {
			exchange.ResponseMetadata().Add(name, v)
		}
	}
	writer := NewMessageWriter[Res](codec, outbound)
	framed, err := writer.Encode(res.Msg)
	if err != nil {
		return err
	}
	return exchange.WriteMessage(framed)
}

func newHandlerAdapter(service ServiceName, method string, shape ExchangeShape, cfg *handlerConfig, run func(context.Context, *GrpcExchange, Compressor, Compressor, io.Reader, InboundMetadata) error) *HandlerAdapter {
	return &HandlerAdapter{
		service:     service,
		method:      method,
		shape:       shape,
		codec:       cfg.codec,
		compressors: cfg.compressors,
		errorMapper: NewErrorMapper(),
		logger:      cfg.logger,
		run:         run,
	}
}

// ServeHTTP implements http.Handler. A panicking handler function is
// recovered and reported as StatusInternal. When the outcome maps to
// StatusCanceled, ServeHTTP writes the trailers and then resets the
// stream, which netHTTPExchange does by panicking with
// http.ErrAbortHandler; that panic propagates out of ServeHTTP for
// net/http to recover.
func (h *HandlerAdapter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	transport := NewNetHTTPExchange(w, req)
	exchange := NewGrpcExchange(transport, h.shape, h.service, h.method, h.logger)

	ctx := req.Context()
	reqHeader := exchange.RequestMetadata()
	if timeout, present, err := reqHeader.Timeout(); present && err == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// req.Context() is itself canceled once ServeHTTP returns, so watching
	// it with GrpcExchange.WatchContext would deadlock waiting for this
	// very call to finish. Race ctx.Done() against a handler-owned stop
	// channel instead.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Cancel resets the transport, and netHTTPExchange.Reset does
			// that by panicking with http.ErrAbortHandler — a sentinel
			// net/http only recovers on the goroutine it invoked ServeHTTP
			// on. This goroutine isn't that one, so swallow it here instead
			// of taking down the process.
			func() {
				defer func() { recover() }()
				exchange.Cancel()
			}()
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	exchange.ResponseMetadata().Set("Content-Type", grpcContentType)
	exchange.ResponseMetadata().Set(headerGrpcAcceptEncoding, joinEncodings(h.compressors.Encodings()))

	inbound, negotiateErr := h.negotiateInbound(reqHeader)
	if negotiateErr != nil {
		h.finish(exchange, negotiateErr)
		return
	}
	outbound := h.negotiateOutbound(reqHeader)
	exchange.ResponseMetadata().Set(headerGrpcEncoding, outbound.Name())

	err := h.invoke(ctx, exchange, inbound, outbound, req.Body, reqHeader)
	h.finish(exchange, err)
}

func (h *HandlerAdapter) invoke(ctx context.Context, exchange *GrpcExchange, inbound, outbound Compressor, body io.Reader, reqHeader InboundMetadata) (err error) {
	defer func() {
		if r := recover(); r != nil {
			status, message := h.errorMapper.MapRecovered(r)
			err = NewError(status, message)
		}
	}()
	return h.run(ctx, exchange, inbound, outbound, body, reqHeader)
}

func (h *HandlerAdapter) finish(exchange *GrpcExchange, err error) {
	status, message := h.errorMapper.Map(err)
	exchange.Finish(status, message)
	if status == StatusCanceled {
		// spec §4.6: a handler failure that maps to CANCELLED completes
		// trailers normally, then resets the stream.
		exchange.resetStream(HTTP2Cancel)
	}
}

func (h *HandlerAdapter) negotiateInbound(header InboundMetadata) (Compressor, *Error) {
	encoding, ok := header.Encoding()
	if !ok || encoding == "" {
		encoding = CompressionIdentity
	}
	c, ok := h.compressors.Resolve(encoding)
	if !ok {
		return nil, NewError(StatusUnimplemented, fmt.Sprintf("Unsupported message encoding: %s", encoding))
	}
	return c, nil
}

func (h *HandlerAdapter) negotiateOutbound(header InboundMetadata) Compressor {
	if c, ok := h.compressors.ResolveFirst(header.AcceptEncoding()...); ok {
		return c
	}
	c, _ := h.compressors.Resolve(CompressionIdentity)
	return c
}

func joinEncodings(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}
