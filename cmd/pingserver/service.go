package main

import (
	"context"
	"errors"
	"io"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/anuraaga/grpcserver"
)

// newInt64 is the newReq argument every handler below needs: a factory
// producing a fresh, independently-owned message for the decoder to fill
// in. wrapperspb.Int64Value stands in for a generated request/response
// message — it's a real compiled proto.Message, so it exercises the full
// codec and framing path without requiring protoc.
func newInt64() *wrapperspb.Int64Value { return new(wrapperspb.Int64Value) }

// ping echoes its input back unchanged.
func ping(_ context.Context, req *grpcserver.Request[*wrapperspb.Int64Value]) (*grpcserver.Response[*wrapperspb.Int64Value], error) {
	return grpcserver.NewResponse(wrapperspb.Int64(req.Msg.GetValue())), nil
}

// sum consumes a client stream and returns the running total as a single
// response message.
func sum(_ context.Context, stream *grpcserver.ClientStream[*wrapperspb.Int64Value]) (*grpcserver.Response[*wrapperspb.Int64Value], error) {
	var total int64
	for stream.Receive() {
		total += stream.Msg().GetValue()
	}
	if stream.Err() != nil {
		return nil, stream.Err()
	}
	return grpcserver.NewResponse(wrapperspb.Int64(total)), nil
}

// countUp streams the integers from 1 through the request value.
func countUp(_ context.Context, req *grpcserver.Request[*wrapperspb.Int64Value], stream *grpcserver.ServerStream[*wrapperspb.Int64Value]) error {
	n := req.Msg.GetValue()
	if n < 0 {
		return grpcserver.NewError(grpcserver.StatusInvalidArgument, "value must be non-negative")
	}
	for i := int64(1); i <= n; i++ {
		if err := stream.Send(wrapperspb.Int64(i)); err != nil {
			return err
		}
	}
	return nil
}

// cumSum streams back a running total for every value it receives,
// interleaving reads and writes on the same bidirectional stream.
func cumSum(_ context.Context, stream *grpcserver.BidiStream[*wrapperspb.Int64Value, *wrapperspb.Int64Value]) error {
	var total int64
	for stream.Receive() {
		total += stream.Msg().GetValue()
		if err := stream.Send(wrapperspb.Int64(total)); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
