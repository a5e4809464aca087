package grpcserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestUnaryRequest(t *testing.T, payloads ...string) *http.Request {
	t.Helper()
	body := encodeFrames(t, payloads...)
	req := httptest.NewRequest(http.MethodPost, "/acme.v1.Foo/Echo", bytes.NewReader(body))
	return req
}

func trailerStatus(rec *httptest.ResponseRecorder) string {
	return rec.Header().Get(http.TrailerPrefix + headerGrpcStatus)
}

func TestHandlerAdapterUnarySuccess(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewUnaryHandler[*testMsg, *testMsg](svc, "Echo", newTestMsg,
		func(_ context.Context, req *Request[*testMsg]) (*Response[*testMsg], error) {
			return NewResponse(&testMsg{payload: "echo: " + req.Msg.payload}), nil
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "hi")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := trailerStatus(rec); got != "0" {
		t.Fatalf("grpc-status trailer = %q, want %q; body=%q", got, "0", rec.Body.String())
	}

	reader := NewMessageReader[*testMsg](newTestMsg, fakeCodec{}, nil)
	msgs, err := reader.Feed(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	if len(msgs) != 1 || msgs[0].payload != "echo: hi" {
		t.Errorf("got %v, want one message %q", msgs, "echo: hi")
	}
}

func TestHandlerAdapterUnaryHandlerErrorBecomesTrailer(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewUnaryHandler[*testMsg, *testMsg](svc, "Echo", newTestMsg,
		func(_ context.Context, _ *Request[*testMsg]) (*Response[*testMsg], error) {
			return nil, NewError(StatusNotFound, "widget missing")
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "hi")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := trailerStatus(rec); got != "5" {
		t.Errorf("grpc-status trailer = %q, want %q (NotFound)", got, "5")
	}
	if got := rec.Header().Get(http.TrailerPrefix + headerGrpcMessage); got != "widget missing" {
		t.Errorf("grpc-message trailer = %q, want %q", got, "widget missing")
	}
}

func TestHandlerAdapterRecoversPanic(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewUnaryHandler[*testMsg, *testMsg](svc, "Echo", newTestMsg,
		func(_ context.Context, _ *Request[*testMsg]) (*Response[*testMsg], error) {
			panic("handler bug")
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "hi")
	rec := httptest.NewRecorder()

	// ServeHTTP must not itself panic.
	handler.ServeHTTP(rec, req)

	if got := trailerStatus(rec); got != "13" {
		t.Errorf("grpc-status trailer = %q, want %q (Internal)", got, "13")
	}
}

func TestHandlerAdapterRejectsMultipleUnaryMessages(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewUnaryHandler[*testMsg, *testMsg](svc, "Echo", newTestMsg,
		func(_ context.Context, req *Request[*testMsg]) (*Response[*testMsg], error) {
			return NewResponse(req.Msg), nil
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "one", "two")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := trailerStatus(rec); got != "3" {
		t.Errorf("grpc-status trailer = %q, want %q (InvalidArgument)", got, "3")
	}
}

func TestHandlerAdapterServerStreaming(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewServerStreamHandler[*testMsg, *testMsg](svc, "CountUp", newTestMsg,
		func(_ context.Context, req *Request[*testMsg], stream *ServerStream[*testMsg]) error {
			for _, p := range []string{"one", "two", "three"} {
				if err := stream.Send(&testMsg{payload: p}); err != nil {
					return err
				}
			}
			return nil
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "go")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := trailerStatus(rec); got != "0" {
		t.Fatalf("grpc-status trailer = %q, want %q; body=%q", got, "0", rec.Body.String())
	}
	reader := NewMessageReader[*testMsg](newTestMsg, fakeCodec{}, nil)
	msgs, err := reader.Feed(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
}

func TestHandlerAdapterClientStreaming(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewClientStreamHandler[*testMsg, *testMsg](svc, "Sum", newTestMsg,
		func(_ context.Context, stream *ClientStream[*testMsg]) (*Response[*testMsg], error) {
			var combined string
			for stream.Receive() {
				combined += stream.Msg().payload
			}
			if stream.Err() != nil {
				return nil, stream.Err()
			}
			return NewResponse(&testMsg{payload: combined}), nil
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "a", "b", "c")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := trailerStatus(rec); got != "0" {
		t.Fatalf("grpc-status trailer = %q, want %q; body=%q", got, "0", rec.Body.String())
	}
	reader := NewMessageReader[*testMsg](newTestMsg, fakeCodec{}, nil)
	msgs, err := reader.Feed(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	if len(msgs) != 1 || msgs[0].payload != "abc" {
		t.Errorf("got %v, want one message %q", msgs, "abc")
	}
}

func TestHandlerAdapterNegotiatesUnsupportedEncoding(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewUnaryHandler[*testMsg, *testMsg](svc, "Echo", newTestMsg,
		func(_ context.Context, req *Request[*testMsg]) (*Response[*testMsg], error) {
			return NewResponse(req.Msg), nil
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "hi")
	req.Header.Set(headerGrpcEncoding, "bogus-encoding")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := trailerStatus(rec); got != "12" {
		t.Errorf("grpc-status trailer = %q, want %q (Unimplemented)", got, "12")
	}
	if got := rec.Header().Get(http.TrailerPrefix + headerGrpcMessage); got != "Unsupported message encoding: bogus-encoding" {
		t.Errorf("grpc-message trailer = %q, want exact spec wording", got)
	}
	if got := rec.Header().Get(headerGrpcAcceptEncoding); got == "" {
		t.Error("grpc-accept-encoding header missing on the unsupported-encoding failure path")
	}
}

func TestHandlerAdapterStatusCanceledResetsAfterTrailers(t *testing.T) {
	svc, _ := NewServiceName("acme.v1", "Foo")
	handler := NewUnaryHandler[*testMsg, *testMsg](svc, "Echo", newTestMsg,
		func(_ context.Context, _ *Request[*testMsg]) (*Response[*testMsg], error) {
			return nil, NewError(StatusCanceled, "caller went away")
		},
		WithCodec(fakeCodec{}),
	)

	req := newTestUnaryRequest(t, "hi")
	rec := httptest.NewRecorder()

	// netHTTPExchange resets a stream by panicking with http.ErrAbortHandler;
	// a real net/http server recovers exactly this sentinel on the handler's
	// own goroutine, so the test reproduces that recovery here.
	func() {
		defer func() {
			if r := recover(); r != http.ErrAbortHandler {
				t.Fatalf("recovered %v, want http.ErrAbortHandler", r)
			}
		}()
		handler.ServeHTTP(rec, req)
	}()

	if got := trailerStatus(rec); got != "1" {
		t.Errorf("grpc-status trailer = %q, want %q (Canceled)", got, "1")
	}
}
