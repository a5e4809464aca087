package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorMapperNilIsOK(t *testing.T) {
	m := NewErrorMapper()
	status, msg := m.Map(nil)
	if status != StatusOK || msg != "" {
		t.Errorf("Map(nil) = (%v, %q), want (StatusOK, \"\")", status, msg)
	}
}

func TestErrorMapperPassesThroughError(t *testing.T) {
	m := NewErrorMapper()
	status, msg := m.Map(NewError(StatusNotFound, "gone"))
	if status != StatusNotFound || msg != "gone" {
		t.Errorf("Map(*Error) = (%v, %q), want (StatusNotFound, \"gone\")", status, msg)
	}
}

func TestErrorMapperWrappedError(t *testing.T) {
	m := NewErrorMapper()
	wrapped := fmt.Errorf("while doing something: %w", NewError(StatusAborted, "conflict"))
	status, msg := m.Map(wrapped)
	if status != StatusAborted || msg != "conflict" {
		t.Errorf("Map(wrapped *Error) = (%v, %q), want (StatusAborted, \"conflict\")", status, msg)
	}
}

func TestErrorMapperHTTPError(t *testing.T) {
	m := NewErrorMapper()
	status, _ := m.Map(&HTTPError{StatusCode: 404, Message: "not found upstream"})
	if status != StatusUnimplemented {
		t.Errorf("Map(*HTTPError{404}) status = %v, want StatusUnimplemented", status)
	}
}

func TestErrorMapperInvalidArgumentError(t *testing.T) {
	m := NewErrorMapper()
	status, msg := m.Map(&InvalidArgumentError{Message: "bad field"})
	if status != StatusInvalidArgument || msg != "bad field" {
		t.Errorf("Map(*InvalidArgumentError) = (%v, %q), want (StatusInvalidArgument, \"bad field\")", status, msg)
	}
}

func TestErrorMapperContextErrors(t *testing.T) {
	m := NewErrorMapper()
	if status, _ := m.Map(context.DeadlineExceeded); status != StatusDeadlineExceeded {
		t.Errorf("Map(context.DeadlineExceeded) = %v, want StatusDeadlineExceeded", status)
	}
	if status, _ := m.Map(context.Canceled); status != StatusCanceled {
		t.Errorf("Map(context.Canceled) = %v, want StatusCanceled", status)
	}
}

func TestErrorMapperFallsBackToUnknown(t *testing.T) {
	m := NewErrorMapper()
	status, msg := m.Map(errors.New("something unexpected"))
	if status != StatusUnknown || msg != "something unexpected" {
		t.Errorf("Map(plain error) = (%v, %q), want (StatusUnknown, \"something unexpected\")", status, msg)
	}
}

func TestErrorMapperMapRecovered(t *testing.T) {
	m := NewErrorMapper()
	if status, _ := m.MapRecovered(errors.New("boom")); status != StatusInternal {
		t.Errorf("MapRecovered(error) status = %v, want StatusInternal", status)
	}
	if status, msg := m.MapRecovered("boom"); status != StatusInternal || msg != "panic: boom" {
		t.Errorf("MapRecovered(string) = (%v, %q)", status, msg)
	}
}
