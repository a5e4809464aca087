package grpcserver

import (
	"encoding/binary"
	"io"
)

// lengthPrefixSize is the fixed size of a gRPC frame header: one
// compressed-flag byte plus a four-byte big-endian length.
const lengthPrefixSize = 5

// LengthPrefix is the 5-byte header that precedes every gRPC frame.
type LengthPrefix struct {
	// Compressed is true whenever the on-wire flag byte is non-zero. Per
	// spec §9's open question, any value other than 0 or 1 is treated as
	// compressed — only the writer ever emits 1 for "compressed".
	Compressed bool
	Length     uint32
}

func parseLengthPrefix(b [lengthPrefixSize]byte) LengthPrefix {
	return LengthPrefix{
		Compressed: b[0] != 0,
		Length:     binary.BigEndian.Uint32(b[1:5]),
	}
}

func (p LengthPrefix) encode() [lengthPrefixSize]byte {
	var b [lengthPrefixSize]byte
	if p.Compressed {
		b[0] = 1
	}
	binary.BigEndian.PutUint32(b[1:5], p.Length)
	return b
}

// rawFrame is one fully-assembled frame, prior to decompression and
// protobuf parsing.
type rawFrame struct {
	compressed bool
	payload    []byte
}

type frameDecoderState int

const (
	stateAwaitingPrefix frameDecoderState = iota
	stateAwaitingPayload
)

// frameDecoder is the ReaderState machine from spec §3/§4.4, kept
// independent of protobuf and compression concerns so it can be tested
// for chunk-invariance on its own (testable property 2). It's fed
// arbitrarily-chunked byte slices — one call to Feed corresponds to one
// chunk delivered by the transport — and emits every frame a chunk
// completes.
//
// A frameDecoder is owned exclusively by one stream and must not be
// shared; it retains a tail buffer across calls that's released the
// moment a terminal signal arrives by simply dropping the frameDecoder
// itself (there's no separate free-list to return to).
type frameDecoder struct {
	state      frameDecoderState
	prefixBuf  []byte // 0-5 bytes accumulated toward the next LengthPrefix
	current    *LengthPrefix
	payloadBuf []byte // accumulated payload bytes for current
	tail       []byte // bytes left over from a previous Feed call
}

func newFrameDecoder() *frameDecoder {
	return &frameDecoder{state: stateAwaitingPrefix}
}

// Feed processes one externally-delivered chunk and returns every frame it
// completes, in order. An empty chunk with nothing retained is a no-op —
// per spec §9's open question, this implementation treats that case as
// intentional tolerance for empty chunks rather than an error.
func (d *frameDecoder) Feed(chunk []byte) ([]rawFrame, error) {
	if len(chunk) == 0 && len(d.tail) == 0 {
		return nil, nil
	}
	input := chunk
	if len(d.tail) > 0 {
		input = append(append(make([]byte, 0, len(d.tail)+len(chunk)), d.tail...), chunk...)
		d.tail = nil
	}

	var frames []rawFrame
	for {
		if d.state == stateAwaitingPrefix {
			need := lengthPrefixSize - len(d.prefixBuf)
			if need > len(input) {
				d.prefixBuf = append(d.prefixBuf, input...)
				input = nil
				break
			}
			d.prefixBuf = append(d.prefixBuf, input[:need]...)
			input = input[need:]

			var raw [lengthPrefixSize]byte
			copy(raw[:], d.prefixBuf)
			prefix := parseLengthPrefix(raw)
			d.prefixBuf = d.prefixBuf[:0]
			d.current = &prefix
			d.payloadBuf = make([]byte, 0, prefix.Length)
			d.state = stateAwaitingPayload
		}

		remaining := int(d.current.Length) - len(d.payloadBuf)
		if remaining > len(input) {
			d.payloadBuf = append(d.payloadBuf, input...)
			input = nil
			break
		}
		d.payloadBuf = append(d.payloadBuf, input[:remaining]...)
		input = input[remaining:]
		frames = append(frames, rawFrame{compressed: d.current.Compressed, payload: d.payloadBuf})
		d.current = nil
		d.payloadBuf = nil
		d.state = stateAwaitingPrefix

		if len(input) == 0 {
			break
		}
	}

	if len(input) > 0 {
		d.tail = append([]byte(nil), input...)
	}
	return frames, nil
}

// Close signals end-of-stream. It reports an error only if a frame was
// left incomplete — an exactly-drained stream (current == nil, no
// retained bytes) is a valid empty or complete message sequence.
func (d *frameDecoder) Close() error {
	if d.state == stateAwaitingPayload || len(d.prefixBuf) > 0 || len(d.tail) > 0 {
		return errorf(StatusInternal, "grpcserver: stream ended with a partial gRPC frame pending")
	}
	return nil
}

// MessageReader decodes a backpressured byte stream into typed protobuf
// messages (spec §4.4). One MessageReader is created per in-flight
// request or response stream and is not safe for concurrent use — the
// surrounding GrpcExchange guarantees single-threaded access per the
// concurrency model in spec §5.
type MessageReader[T any] struct {
	decoder    *frameDecoder
	newMessage func() T
	codec      Codec
	compressor Compressor // negotiated inbound compressor; identity is a valid value
}

// NewMessageReader constructs a MessageReader. newMessage must return a
// freshly allocated, zero-valued T (typically `func() T { return new(U) }`
// for a pointer message type T = *U) on every call, since a decoded
// message is handed to the caller and must not alias a previous one.
func NewMessageReader[T any](newMessage func() T, codec Codec, compressor Compressor) *MessageReader[T] {
	return &MessageReader[T]{
		decoder:    newFrameDecoder(),
		newMessage: newMessage,
		codec:      codec,
		compressor: compressor,
	}
}

// Feed hands the reader one chunk of raw transport bytes and returns every
// message the chunk completes, in arrival order. A chunk may complete
// zero, one, or many messages.
func (r *MessageReader[T]) Feed(chunk []byte) ([]T, error) {
	frames, err := r.decoder.Feed(chunk)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}
	out := make([]T, 0, len(frames))
	for _, frame := range frames {
		payload := frame.payload
		if frame.compressed {
			if r.compressor == nil {
				return out, errorf(StatusInternal, "grpcserver: received a compressed frame with no negotiated compressor")
			}
			decompressed, derr := r.compressor.Decompress(payload)
			if derr != nil {
				return out, errorf(StatusInternal, "grpcserver: %v", derr)
			}
			payload = decompressed
		}
		msg := r.newMessage()
		if uerr := r.codec.Unmarshal(payload, msg); uerr != nil {
			return out, errorf(StatusInternal, "Invalid protobuf byte sequence")
		}
		out = append(out, msg)
	}
	return out, nil
}

// Close signals end-of-stream, surfacing an error if a frame was left
// incomplete. Close releases nothing itself: the reader's retained
// buffers are freed by GC once the MessageReader is dropped. Close is what
// classifies a truncated stream as an error.
func (r *MessageReader[T]) Close() error {
	return r.decoder.Close()
}

// ReadAllMessages bridges a real, pull-based io.Reader (such as an HTTP/2
// request body) to a MessageReader's push-based Feed API, reading body to
// EOF. The unary and server-streaming handlers read their request body
// with it; ClientStream does the same bridging incrementally, one Receive
// at a time. Go exposes stream bodies as blocking io.Readers, not as a
// callback-driven chunk publisher, so bridging is the idiomatic way to
// reuse the same decoder for both real transports and chunk-invariance
// tests.
func ReadAllMessages[T any](reader *MessageReader[T], body io.Reader) ([]T, error) {
	buf := make([]byte, 32*1024)
	var out []T
	for {
		n, err := body.Read(buf)
		if n > 0 {
			msgs, ferr := reader.Feed(buf[:n])
			if ferr != nil {
				return out, ferr
			}
			out = append(out, msgs...)
		}
		if err == io.EOF {
			if cerr := reader.Close(); cerr != nil {
				return out, cerr
			}
			return out, nil
		}
		if err != nil {
			return out, wrap(StatusUnknown, err)
		}
	}
}

// MessageWriter encodes typed protobuf messages into framed byte buffers
// (spec §4.5). Exactly one output buffer is produced per input message;
// MessageWriter never batches frames.
type MessageWriter[T any] struct {
	codec      Codec
	compressor Compressor // negotiated outbound compressor; identity is a valid value
}

// NewMessageWriter constructs a MessageWriter.
func NewMessageWriter[T any](codec Codec, compressor Compressor) *MessageWriter[T] {
	return &MessageWriter[T]{codec: codec, compressor: compressor}
}

// Encode serializes msg into one framed buffer: a 5-byte LengthPrefix
// followed by the (possibly compressed) payload.
func (w *MessageWriter[T]) Encode(msg T) ([]byte, error) {
	raw, err := w.codec.Marshal(msg)
	if err != nil {
		return nil, errorf(StatusInternal, "grpcserver: marshal: %v", err)
	}
	payload := raw
	compressed := false
	if w.compressor != nil && w.compressor.Name() != CompressionIdentity {
		c, cerr := w.compressor.Compress(raw)
		if cerr != nil {
			return nil, errorf(StatusInternal, "grpcserver: compress: %v", cerr)
		}
		payload = c
		compressed = true
	}
	prefix := LengthPrefix{Compressed: compressed, Length: uint32(len(payload))}
	header := prefix.encode()
	out := make([]byte, 0, lengthPrefixSize+len(payload))
	out = append(out, header[:]...)
	out = append(out, payload...)
	return out, nil
}

// WriteTo encodes msg and writes the framed buffer to dst in one Write
// call.
func (w *MessageWriter[T]) WriteTo(dst io.Writer, msg T) error {
	framed, err := w.Encode(msg)
	if err != nil {
		return err
	}
	if _, werr := dst.Write(framed); werr != nil {
		return errorf(StatusUnknown, "grpcserver: writing response frame: %v", werr)
	}
	return nil
}
