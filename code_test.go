package grpcserver

import "testing"

func TestStatusMarshalUnmarshalText(t *testing.T) {
	for _, s := range []Status{StatusOK, StatusCanceled, StatusUnimplemented, StatusDataLoss, StatusUnauthenticated} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", s, err)
		}
		var got Status
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != s {
			t.Errorf("round trip: got %v, want %v", got, s)
		}
	}
}

func TestStatusUnmarshalTextAcceptsCanonicalNames(t *testing.T) {
	cases := map[string]Status{
		"OK":                StatusOK,
		"CANCELLED":         StatusCanceled,
		"NOT_FOUND":         StatusNotFound,
		"FAILED_PRECONDITION": StatusFailedPrecondition,
	}
	for text, want := range cases {
		var got Status
		if err := got.UnmarshalText([]byte(text)); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestStatusUnmarshalTextRejectsOutOfRange(t *testing.T) {
	var s Status
	if err := s.UnmarshalText([]byte("17")); err == nil {
		t.Error("expected an error for code 17, got nil")
	}
	if err := s.UnmarshalText([]byte("not-a-status")); err == nil {
		t.Error("expected an error for a garbage string, got nil")
	}
}

func TestFromCode(t *testing.T) {
	if s, ok := FromCode(13); !ok || s != StatusInternal {
		t.Errorf("FromCode(13) = (%v, %v), want (StatusInternal, true)", s, ok)
	}
	if _, ok := FromCode(-1); ok {
		t.Error("FromCode(-1) should report false")
	}
	if _, ok := FromCode(17); ok {
		t.Error("FromCode(17) should report false: only 0-16 are defined")
	}
}

func TestFromHTTP2Error(t *testing.T) {
	cases := []struct {
		code HTTP2ErrCode
		want Status
		ok   bool
	}{
		{HTTP2Cancel, StatusCanceled, true},
		{HTTP2RefusedStream, StatusUnavailable, true},
		{HTTP2EnhanceYourCalm, StatusResourceExhausted, true},
		{HTTP2InadequateSecurity, StatusPermissionDenied, true},
		{HTTP2ProtocolError, StatusInternal, true},
		{HTTP2StreamClosed, 0, false},
		{HTTP2HTTP1_1Required, 0, false},
	}
	for _, c := range cases {
		got, ok := FromHTTP2Error(c.code)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("FromHTTP2Error(%v) = (%v, %v), want (%v, %v)", c.code, got, ok, c.want, c.ok)
		}
	}
}

func TestFromHTTPStatus(t *testing.T) {
	cases := map[int]Status{
		401: StatusUnauthenticated,
		403: StatusPermissionDenied,
		404: StatusUnimplemented,
		429: StatusUnavailable,
		502: StatusUnavailable,
		503: StatusUnavailable,
		504: StatusUnavailable,
		418: StatusUnknown,
	}
	for httpStatus, want := range cases {
		if got := FromHTTPStatus(httpStatus); got != want {
			t.Errorf("FromHTTPStatus(%d) = %v, want %v", httpStatus, got, want)
		}
	}
}
