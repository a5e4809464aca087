package grpcserver

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Header names with well-known meaning. Metadata treats these no
// differently from any other entry; they're exposed as typed accessors
// purely for convenience and to keep the parsing logic in one place.
const (
	headerGrpcEncoding       = "Grpc-Encoding"
	headerGrpcAcceptEncoding = "Grpc-Accept-Encoding"
	headerGrpcMessageType    = "Grpc-Message-Type"
	headerGrpcTimeout        = "Grpc-Timeout"
	headerGrpcStatus         = "Grpc-Status"
	headerGrpcMessage        = "Grpc-Message"
)

// binHeaderSuffix marks a header as carrying base64(no-pad)-encoded binary
// data. The suffix is managed entirely by AddBinary/GetBinary/etc; callers
// pass the bare name and never write "-bin" themselves.
const binHeaderSuffix = "-bin"

// InboundMetadata is a read-only view over a multimap of ASCII header (or
// trailer) names to values, as delivered by the HTTP/2 transport. Header
// names are matched case-insensitively; iteration order is never
// observable through the accessors below.
type InboundMetadata struct {
	header http.Header
}

// NewInboundMetadata wraps an existing http.Header as a read-only
// InboundMetadata. A nil header is treated as empty.
func NewInboundMetadata(h http.Header) InboundMetadata {
	if h == nil {
		h = make(http.Header)
	}
	return InboundMetadata{header: h}
}

// Get returns the first value stored under name, case-insensitively.
func (m InboundMetadata) Get(name string) (string, bool) { return headerGet(m.header, name) }

// Values returns every value stored under name, in storage order.
func (m InboundMetadata) Values(name string) []string { return m.header.Values(name) }

// Contains reports whether any value is stored under name.
func (m InboundMetadata) Contains(name string) bool { return headerContains(m.header, name) }

// Keys returns the canonicalized set of plain (non-"-bin") header names
// present, in no particular order.
func (m InboundMetadata) Keys() []string { return headerKeys(m.header, false) }

// BinaryKeys returns the canonicalized set of binary ("-bin") header names
// present, with the suffix stripped, in no particular order.
func (m InboundMetadata) BinaryKeys() []string { return headerKeys(m.header, true) }

// GetBinary decodes the base64(no-pad) value stored under name+"-bin".
func (m InboundMetadata) GetBinary(name string) ([]byte, bool) { return headerGetBinary(m.header, name) }

// ContainsBinary reports whether name+"-bin" is present and decodes to
// exactly value.
func (m InboundMetadata) ContainsBinary(name string, value []byte) bool {
	got, ok := m.GetBinary(name)
	return ok && bytes.Equal(got, value)
}

// AcceptEncoding parses the comma-separated grpc-accept-encoding header.
// It returns nil if the header is absent or empty.
func (m InboundMetadata) AcceptEncoding() []string { return splitCommaList(m.header.Get(headerGrpcAcceptEncoding)) }

// Encoding returns the grpc-encoding header, if present.
func (m InboundMetadata) Encoding() (string, bool) { return headerGet(m.header, headerGrpcEncoding) }

// MessageType returns the grpc-message-type header, if present. It's
// purely informational and is never interpreted by this package.
func (m InboundMetadata) MessageType() (string, bool) { return headerGet(m.header, headerGrpcMessageType) }

// Timeout parses the grpc-timeout header. present is false if the header
// was absent; err is non-nil if the header was present but malformed.
func (m InboundMetadata) Timeout() (d time.Duration, present bool, err error) {
	raw, ok := headerGet(m.header, headerGrpcTimeout)
	if !ok {
		return 0, false, nil
	}
	d, err = decodeTimeout(raw)
	return d, true, err
}

// GrpcStatus parses the grpc-status trailer as a Status. It's meaningful
// only on trailers, but InboundMetadata doesn't distinguish headers from
// trailers — both are delivered as http.Header.
func (m InboundMetadata) GrpcStatus() (Status, bool) {
	raw, ok := headerGet(m.header, headerGrpcStatus)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return FromCode(int32(n))
}

// GrpcMessage returns the percent-decoded grpc-message trailer, if
// present and non-empty.
func (m InboundMetadata) GrpcMessage() (string, bool) {
	raw, ok := headerGet(m.header, headerGrpcMessage)
	if !ok || raw == "" {
		return "", false
	}
	decoded, err := percentDecode(raw)
	if err != nil {
		return raw, true
	}
	return decoded, true
}

// OutboundMetadata is a mutable view over response headers or trailers.
// It has no notion of exchange state, and GrpcExchange does not gate
// writes made through it: a header write made after response headers have
// been flushed is accepted here without error and never reaches the wire.
type OutboundMetadata struct {
	header http.Header
}

// NewOutboundMetadata wraps an existing http.Header as a mutable
// OutboundMetadata. A nil header is treated as empty.
func NewOutboundMetadata(h http.Header) OutboundMetadata {
	if h == nil {
		h = make(http.Header)
	}
	return OutboundMetadata{header: h}
}

func (m OutboundMetadata) Get(name string) (string, bool) { return headerGet(m.header, name) }
func (m OutboundMetadata) Values(name string) []string    { return m.header.Values(name) }
func (m OutboundMetadata) Contains(name string) bool      { return headerContains(m.header, name) }
func (m OutboundMetadata) Keys() []string                 { return headerKeys(m.header, false) }
func (m OutboundMetadata) BinaryKeys() []string           { return headerKeys(m.header, true) }

func (m OutboundMetadata) GetBinary(name string) ([]byte, bool) { return headerGetBinary(m.header, name) }
func (m OutboundMetadata) ContainsBinary(name string, value []byte) bool {
	got, ok := m.GetBinary(name)
	return ok && bytes.Equal(got, value)
}

// Set replaces every value stored under name.
func (m OutboundMetadata) Set(name, value string) { m.header.Set(name, value) }

// Add appends value to whatever is already stored under name.
func (m OutboundMetadata) Add(name, value string) { m.header.Add(name, value) }

// Del removes every value stored under name.
func (m OutboundMetadata) Del(name string) { m.header.Del(name) }

// SetBinary encodes value as base64(no-pad) and stores it under
// name+"-bin", replacing any existing value.
func (m OutboundMetadata) SetBinary(name string, value []byte) {
	m.header.Set(binaryHeaderName(name), base64.RawStdEncoding.EncodeToString(value))
}

// AddBinary encodes value as base64(no-pad) and appends it under
// name+"-bin".
func (m OutboundMetadata) AddBinary(name string, value []byte) {
	m.header.Add(binaryHeaderName(name), base64.RawStdEncoding.EncodeToString(value))
}

// SetGrpcStatus sets the grpc-status trailer. Callers should route through
// GrpcExchange rather than calling this directly; GrpcExchange.Finish
// writes grpc-status to the transport itself and does not call this.
func (m OutboundMetadata) SetGrpcStatus(status Status) {
	text, err := status.MarshalText()
	if err != nil {
		text = []byte(strconv.Itoa(int(status)))
	}
	m.header.Set(headerGrpcStatus, string(text))
}

// SetGrpcMessage percent-encodes message and sets the grpc-message
// trailer. An empty message clears the header rather than writing an
// empty value, matching how real gRPC peers treat "no message".
func (m OutboundMetadata) SetGrpcMessage(message string) {
	if message == "" {
		m.header.Del(headerGrpcMessage)
		return
	}
	m.header.Set(headerGrpcMessage, percentEncode(message))
}

func headerGet(h http.Header, name string) (string, bool) {
	values := h.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func headerContains(h http.Header, name string) bool { return len(h.Values(name)) > 0 }

func headerGetBinary(h http.Header, name string) ([]byte, bool) {
	raw, ok := headerGet(h, binaryHeaderName(name))
	if !ok {
		return nil, false
	}
	decoded, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil {
		// Fall back to padded encodings: some peers pad despite the spec.
		decoded, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, false
		}
	}
	return decoded, true
}

func headerKeys(h http.Header, binary bool) []string {
	keys := make([]string, 0, len(h))
	for name := range h {
		isBin := strings.HasSuffix(strings.ToLower(name), binHeaderSuffix)
		if isBin != binary {
			continue
		}
		if isBin {
			name = name[:len(name)-len(binHeaderSuffix)]
		}
		keys = append(keys, name)
	}
	return keys
}

func binaryHeaderName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), binHeaderSuffix) {
		return name
	}
	return name + binHeaderSuffix
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// percentEncode and percentDecode implement the narrow percent-encoding
// gRPC requires for grpc-message. percentEncode escapes every byte outside
// printable ASCII (0x20-0x7E), and '%' itself, as %XX with two uppercase
// hex digits; percentDecode reuses net/url's unescaper, which reverses
// exactly that form.
func percentEncode(msg string) string {
	var needsEscaping bool
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if c < 0x20 || c > 0x7e || c == '%' {
			needsEscaping = true
			break
		}
	}
	if !needsEscaping {
		return msg
	}
	var out strings.Builder
	out.Grow(len(msg))
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if c < 0x20 || c > 0x7e || c == '%' {
			const hexDigits = "0123456789ABCDEF"
			out.WriteByte('%')
			out.WriteByte(hexDigits[c>>4])
			out.WriteByte(hexDigits[c&0x0f])
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

func percentDecode(msg string) (string, error) {
	if !strings.ContainsRune(msg, '%') {
		return msg, nil
	}
	return url.PathUnescape(msg)
}
