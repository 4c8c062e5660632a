package domain

import (
	"errors"
	"fmt"
	"testing"
)

// --- StatusError ---

func TestStatusError_MessageWithBody(t *testing.T) {
	err := &StatusError{Code: 502, Body: "upstream down"}
	want := "endpoint returned 502: upstream down"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestStatusError_MessageWithoutBody(t *testing.T) {
	err := &StatusError{Code: 401}
	want := "endpoint returned 401"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

// --- HTTPStatus ---

func TestHTTPStatus_DirectError(t *testing.T) {
	if code := HTTPStatus(&StatusError{Code: 404}); code != 404 {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestHTTPStatus_WrappedError(t *testing.T) {
	err := fmt.Errorf("chat failed: %w", &StatusError{Code: 500, Body: "boom"})
	if code := HTTPStatus(err); code != 500 {
		t.Fatalf("expected 500, got %d", code)
	}
}

func TestHTTPStatus_OtherError(t *testing.T) {
	if code := HTTPStatus(errors.New("plain")); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	if code := HTTPStatus(nil); code != 0 {
		t.Fatalf("expected 0 for nil, got %d", code)
	}
}

// --- Sentinel matching ---

func TestIsTimeout_Wrapped(t *testing.T) {
	err := fmt.Errorf("%w: client timeout after 30s", ErrTimeout)
	if !IsTimeout(err) {
		t.Fatal("wrapped timeout not recognized")
	}
	if IsConnection(err) || IsMalformedResponse(err) {
		t.Fatal("timeout matched unrelated sentinel")
	}
}

func TestIsConnection_Wrapped(t *testing.T) {
	err := fmt.Errorf("%w: dial tcp: connection refused", ErrConnection)
	if !IsConnection(err) {
		t.Fatal("wrapped connection error not recognized")
	}
}

func TestIsMalformedResponse_Wrapped(t *testing.T) {
	err := fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	if !IsMalformedResponse(err) {
		t.Fatal("wrapped malformed-response error not recognized")
	}
}

func TestSentinels_Distinct(t *testing.T) {
	if IsTimeout(ErrConnection) || IsConnection(ErrTimeout) || IsMalformedResponse(ErrTimeout) {
		t.Fatal("sentinels must not match each other")
	}
}
