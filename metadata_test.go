package grpcserver

import (
	"net/http"
	"testing"
)

func TestOutboundMetadataSetGet(t *testing.T) {
	m := NewOutboundMetadata(make(http.Header))
	m.Set("X-Custom", "value")
	got, ok := m.Get("x-custom")
	if !ok || got != "value" {
		t.Errorf("Get(\"x-custom\") = (%q, %v), want (\"value\", true)", got, ok)
	}
}

func TestOutboundMetadataBinaryRoundTrip(t *testing.T) {
	m := NewOutboundMetadata(make(http.Header))
	payload := []byte{0x00, 0x01, 0xff, 0x80}
	m.SetBinary("trace", payload)

	inbound := NewInboundMetadata(m.header)
	got, ok := inbound.GetBinary("trace")
	if !ok {
		t.Fatal("GetBinary(\"trace\") reported not found")
	}
	if string(got) != string(payload) {
		t.Errorf("GetBinary(\"trace\") = %v, want %v", got, payload)
	}
	if _, ok := inbound.Get("trace-bin"); !ok {
		t.Error("raw header trace-bin should still be readable via Get")
	}
}

func TestInboundMetadataAcceptEncoding(t *testing.T) {
	h := make(http.Header)
	h.Set(headerGrpcAcceptEncoding, "gzip, identity,  deflate")
	m := NewInboundMetadata(h)
	got := m.AcceptEncoding()
	want := []string{"gzip", "identity", "deflate"}
	if len(got) != len(want) {
		t.Fatalf("AcceptEncoding() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AcceptEncoding()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInboundMetadataTimeout(t *testing.T) {
	h := make(http.Header)
	h.Set(headerGrpcTimeout, "100m")
	m := NewInboundMetadata(h)
	d, present, err := m.Timeout()
	if !present || err != nil {
		t.Fatalf("Timeout() = (%v, %v, %v)", d, present, err)
	}
	if want := int64(100); d.Milliseconds() != want {
		t.Errorf("Timeout() = %v, want 100ms", d)
	}

	empty := NewInboundMetadata(make(http.Header))
	if _, present, _ := empty.Timeout(); present {
		t.Error("Timeout() on a header with no grpc-timeout should report present=false")
	}
}

func TestGrpcStatusMessageRoundTrip(t *testing.T) {
	h := make(http.Header)
	out := NewOutboundMetadata(h)
	out.SetGrpcStatus(StatusNotFound)
	out.SetGrpcMessage("widget \"42\" not found")

	in := NewInboundMetadata(h)
	status, ok := in.GrpcStatus()
	if !ok || status != StatusNotFound {
		t.Errorf("GrpcStatus() = (%v, %v), want (StatusNotFound, true)", status, ok)
	}
	msg, ok := in.GrpcMessage()
	if !ok || msg != "widget \"42\" not found" {
		t.Errorf("GrpcMessage() = (%q, %v)", msg, ok)
	}
}

func TestSetGrpcMessageClearsOnEmpty(t *testing.T) {
	h := make(http.Header)
	out := NewOutboundMetadata(h)
	out.SetGrpcMessage("oops")
	out.SetGrpcMessage("")
	if out.Contains(headerGrpcMessage) {
		t.Error("SetGrpcMessage(\"\") should remove the header, not set it empty")
	}
}
