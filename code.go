package grpcserver

import (
	"fmt"
	"strconv"
)

const (
	StatusOK                 Status = 0  // success
	StatusCanceled           Status = 1  // canceled, usually by the caller
	StatusUnknown            Status = 2  // unknown error
	StatusInvalidArgument    Status = 3  // argument invalid regardless of system state
	StatusDeadlineExceeded   Status = 4  // operation expired, may or may not have completed
	StatusNotFound           Status = 5  // entity not found
	StatusAlreadyExists      Status = 6  // entity already exists
	StatusPermissionDenied   Status = 7  // operation not authorized
	StatusResourceExhausted  Status = 8  // quota exhausted
	StatusFailedPrecondition Status = 9  // argument invalid in current system state
	StatusAborted            Status = 10 // operation aborted
	StatusOutOfRange         Status = 11 // out of bounds, use instead of StatusFailedPrecondition
	StatusUnimplemented      Status = 12 // operation not implemented or disabled
	StatusInternal           Status = 13 // internal error, reserved for "serious errors"
	StatusUnavailable        Status = 14 // unavailable, caller should back off and retry
	StatusDataLoss           Status = 15 // unrecoverable data loss or corruption
	StatusUnauthenticated    Status = 16 // request isn't authenticated

	minStatus Status = StatusOK
	maxStatus Status = StatusUnauthenticated
)

var stringToStatus = map[string]Status{
	"OK":                  StatusOK,
	"CANCELLED":           StatusCanceled, // wire spelling is British
	"UNKNOWN":             StatusUnknown,
	"INVALID_ARGUMENT":    StatusInvalidArgument,
	"DEADLINE_EXCEEDED":   StatusDeadlineExceeded,
	"NOT_FOUND":           StatusNotFound,
	"ALREADY_EXISTS":      StatusAlreadyExists,
	"PERMISSION_DENIED":   StatusPermissionDenied,
	"RESOURCE_EXHAUSTED":  StatusResourceExhausted,
	"FAILED_PRECONDITION": StatusFailedPrecondition,
	"ABORTED":             StatusAborted,
	"OUT_OF_RANGE":        StatusOutOfRange,
	"UNIMPLEMENTED":       StatusUnimplemented,
	"INTERNAL":            StatusInternal,
	"UNAVAILABLE":         StatusUnavailable,
	"DATA_LOSS":           StatusDataLoss,
	"UNAUTHENTICATED":     StatusUnauthenticated,
}

// Status is one of gRPC's seventeen canonical status codes. There are no
// user-defined codes: FromCode is the only way to get a Status from an
// arbitrary integer, and it reports whether the integer names a real code.
//
// See https://github.com/grpc/grpc/blob/master/doc/statuscodes.md for
// descriptions of each code and its intended usage.
type Status uint32

// FromCode reports the named Status for c, or false if c names no status in
// the closed set of seventeen codes.
func FromCode(c int32) (Status, bool) {
	if c < int32(minStatus) || c > int32(maxStatus) {
		return 0, false
	}
	return Status(c), true
}

// MarshalText implements encoding.TextMarshaler. Statuses are marshaled in
// their numeric representation, matching the grpc-status trailer format.
func (s Status) MarshalText() ([]byte, error) {
	if s < minStatus || s > maxStatus {
		return nil, fmt.Errorf("invalid status %v", s)
	}
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts both the
// numeric representation produced by MarshalText and the all-caps strings
// from the gRPC specification. Note that the specification uses the British
// "CANCELLED" for StatusCanceled.
func (s *Status) UnmarshalText(b []byte) error {
	if n, ok := stringToStatus[string(b)]; ok {
		*s = n
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10 /* base */, 32 /* bitsize */)
	if err != nil {
		return fmt.Errorf("invalid status %q", string(b))
	}
	status := Status(n)
	if status < minStatus || status > maxStatus {
		return fmt.Errorf("invalid status %v", n)
	}
	*s = status
	return nil
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCanceled:
		return "Canceled"
	case StatusUnknown:
		return "Unknown"
	case StatusInvalidArgument:
		return "InvalidArgument"
	case StatusDeadlineExceeded:
		return "DeadlineExceeded"
	case StatusNotFound:
		return "NotFound"
	case StatusAlreadyExists:
		return "AlreadyExists"
	case StatusPermissionDenied:
		return "PermissionDenied"
	case StatusResourceExhausted:
		return "ResourceExhausted"
	case StatusFailedPrecondition:
		return "FailedPrecondition"
	case StatusAborted:
		return "Aborted"
	case StatusOutOfRange:
		return "OutOfRange"
	case StatusUnimplemented:
		return "Unimplemented"
	case StatusInternal:
		return "Internal"
	case StatusUnavailable:
		return "Unavailable"
	case StatusDataLoss:
		return "DataLoss"
	case StatusUnauthenticated:
		return "Unauthenticated"
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

// HTTP2ErrCode is an HTTP/2 error code, as carried on a RST_STREAM or
// GOAWAY frame. It mirrors golang.org/x/net/http2.ErrCode's values without
// importing that package's internal numbering, so the mapping table in
// FromHTTP2Error stays self-contained and independently testable.
type HTTP2ErrCode uint32

const (
	HTTP2NoError            HTTP2ErrCode = 0x0
	HTTP2ProtocolError      HTTP2ErrCode = 0x1
	HTTP2InternalError      HTTP2ErrCode = 0x2
	HTTP2FlowControlError   HTTP2ErrCode = 0x3
	HTTP2SettingsTimeout    HTTP2ErrCode = 0x4
	HTTP2StreamClosed       HTTP2ErrCode = 0x5
	HTTP2FrameSizeError     HTTP2ErrCode = 0x6
	HTTP2RefusedStream      HTTP2ErrCode = 0x7
	HTTP2Cancel             HTTP2ErrCode = 0x8
	HTTP2CompressionError   HTTP2ErrCode = 0x9
	HTTP2ConnectError       HTTP2ErrCode = 0xa
	HTTP2EnhanceYourCalm    HTTP2ErrCode = 0xb
	HTTP2InadequateSecurity HTTP2ErrCode = 0xc
	HTTP2HTTP1_1Required    HTTP2ErrCode = 0xd
)

var http2ErrCodeToStatus = map[HTTP2ErrCode]Status{
	HTTP2Cancel:             StatusCanceled,
	HTTP2RefusedStream:      StatusUnavailable,
	HTTP2EnhanceYourCalm:    StatusResourceExhausted,
	HTTP2InadequateSecurity: StatusPermissionDenied,
	HTTP2NoError:            StatusInternal,
	HTTP2ProtocolError:      StatusInternal,
	HTTP2InternalError:      StatusInternal,
	HTTP2FlowControlError:   StatusInternal,
	HTTP2SettingsTimeout:    StatusInternal,
	HTTP2FrameSizeError:     StatusInternal,
	HTTP2CompressionError:   StatusInternal,
	HTTP2ConnectError:       StatusInternal,
	// HTTP2StreamClosed and HTTP2HTTP1_1Required deliberately have no
	// mapping: per spec they propagate rather than collapsing to a status.
}

// FromHTTP2Error maps an HTTP/2 error code (as seen on a RST_STREAM frame)
// to the gRPC status it represents. It reports false for STREAM_CLOSED and
// HTTP_1_1_REQUIRED, which have no gRPC status equivalent and should
// propagate to the caller unmapped.
func FromHTTP2Error(code HTTP2ErrCode) (Status, bool) {
	s, ok := http2ErrCodeToStatus[code]
	return s, ok
}

// FromHTTPStatus maps a plain HTTP status code to the gRPC status an
// ErrorMapper should report when a request fails before gRPC framing even
// starts (for example, a reverse proxy returning 502 before reaching the
// gRPC handler). It is used only by the error mapper, never by the codec.
func FromHTTPStatus(httpStatus int) Status {
	switch httpStatus {
	case 400:
		return StatusInternal
	case 401:
		return StatusUnauthenticated
	case 403:
		return StatusPermissionDenied
	case 404:
		return StatusUnimplemented
	case 429, 502, 503, 504:
		return StatusUnavailable
	default:
		return StatusUnknown
	}
}
