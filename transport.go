package grpcserver

import (
	"context"
	"net/http"
)

// netHTTPExchange adapts an http.ResponseWriter/http.Request pair to
// HTTPExchange. It's the concrete transport collaborator for a real
// server built on net/http plus HTTP/2 (via golang.org/x/net/http2 or
// h2c); spec §6 treats this boundary as external, so the adapter is kept
// intentionally thin.
type netHTTPExchange struct {
	w   http.ResponseWriter
	req *http.Request
}

// NewNetHTTPExchange builds an HTTPExchange backed by the standard
// library's HTTP server. w must support trailers, which means the
// handler must pre-declare every trailer name it intends to write via
// the "Trailer" response header, or via http.TrailerPrefix-prefixed
// headers set before the first Write — HandlerAdapter uses the
// TrailerPrefix convention so callers don't need to predeclare anything.
func NewNetHTTPExchange(w http.ResponseWriter, req *http.Request) HTTPExchange {
	return &netHTTPExchange{w: w, req: req}
}

func (e *netHTTPExchange) Context() context.Context    { return e.req.Context() }
func (e *netHTTPExchange) RequestHeader() http.Header  { return e.req.Header }
func (e *netHTTPExchange) ResponseHeader() http.Header { return e.w.Header() }
func (e *netHTTPExchange) WriteHeader(statusCode int)  { e.w.WriteHeader(statusCode) }

func (e *netHTTPExchange) Write(p []byte) (int, error) { return e.w.Write(p) }

func (e *netHTTPExchange) WriteTrailer(name, value string) {
	e.w.Header().Set(http.TrailerPrefix+name, value)
}

// Reset tears the stream down by panicking with http.ErrAbortHandler,
// which the net/http server recovers silently without writing any
// further bytes. This is a best-effort substitute for an explicit
// RST_STREAM with a chosen HTTP/2 error code: net/http's server doesn't
// expose the underlying http2 stream to handler code, so the precise
// error code is lost. A transport built directly on
// golang.org/x/net/http2's lower-level APIs could do better; callers that
// need the real error code on the wire should provide their own
// HTTPExchange implementation.
func (e *netHTTPExchange) Reset(code HTTP2ErrCode) {
	panic(http.ErrAbortHandler)
}
