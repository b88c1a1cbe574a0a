package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := fmt.Errorf("outer: %w", Wrap(CodeUpstreamFailure, cause, "调用模型失败"))

	if CodeOf(err) != CodeUpstreamFailure {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !stdErrors.Is(err, New(CodeUpstreamFailure, "")) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if !RetryableError(err) {
		t.Fatalf("upstream failures should be retryable by default")
	}
}

func TestRetryableOverride(t *testing.T) {
	err := New(CodeChainFailure, "nonce too low", WithRetryable(false))
	if RetryableError(err) {
		t.Fatalf("expected override to win over registry default")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{New(CodeInvalidArgument, ""), http.StatusBadRequest},
		{New(CodeUnprocessableResponse, ""), http.StatusUnprocessableEntity},
		{New(CodeTimeout, ""), http.StatusGatewayTimeout},
		{stdErrors.New("plain"), http.StatusInternalServerError},
		{New(Code("NOT_REGISTERED"), "x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityInfo, HTTPStatus: http.StatusTeapot})

	err := New(code, "")
	if err.Message() != "custom" {
		t.Fatalf("expected default message from registry, got %q", err.Message())
	}
	if HTTPStatus(err) != http.StatusTeapot {
		t.Fatalf("unexpected status %d", HTTPStatus(err))
	}
}
