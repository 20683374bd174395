package llmclient

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestClassifyFailureTimeout(t *testing.T) {
	if got := classifyFailure(context.DeadlineExceeded); got != failureTimeout {
		t.Fatalf("expected failureTimeout, got %v", got)
	}
}

func TestClassifyFailureConnection(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("boom")}
	if got := classifyFailure(err); got != failureConnection {
		t.Fatalf("expected failureConnection, got %v", got)
	}
}

func TestClassifyFailureConnectionRefusedString(t *testing.T) {
	if got := classifyFailure(errors.New("dial tcp: connection refused")); got != failureConnection {
		t.Fatalf("expected failureConnection, got %v", got)
	}
}

func TestClassifyFailurePermanent(t *testing.T) {
	if got := classifyFailure(errors.New("invalid api key")); got != failurePermanent {
		t.Fatalf("expected failurePermanent, got %v", got)
	}
}

func TestClassifyFailureNone(t *testing.T) {
	if got := classifyFailure(nil); got != failureNone {
		t.Fatalf("expected failureNone, got %v", got)
	}
}

func TestStatusErrorFailureType(t *testing.T) {
	cases := []struct {
		status int
		want   failureType
	}{
		{500, failureServerError},
		{503, failureServerError},
		{429, failureRateLimit},
		{400, failurePermanent},
		{401, failurePermanent},
	}
	for _, c := range cases {
		e := &statusError{StatusCode: c.status}
		if got := e.failureType(); got != c.want {
			t.Fatalf("status %d: expected %v, got %v", c.status, c.want, got)
		}
	}
}

func TestIsServerFailureForStatusError(t *testing.T) {
	if !IsServerFailure(&statusError{StatusCode: 502}) {
		t.Fatalf("expected 502 to be a server failure")
	}
	if IsServerFailure(&statusError{StatusCode: 404}) {
		t.Fatalf("expected 404 to not be a server failure")
	}
}

func TestIsServerFailureForTransportError(t *testing.T) {
	if !IsServerFailure(context.DeadlineExceeded) {
		t.Fatalf("expected timeout to be a server failure")
	}
	if IsServerFailure(errors.New("invalid api key")) {
		t.Fatalf("expected permanent error to not be a server failure")
	}
}
