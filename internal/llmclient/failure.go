package llmclient

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// failureType classifies why a provider call failed, so Complete's
// retry predicate can distinguish a transient network hiccup from a
// permanent rejection instead of only inspecting the HTTP status code.
type failureType int

const (
	failureNone failureType = iota
	failureTimeout
	failureConnection
	failureServerError
	failureRateLimit
	failurePermanent
)

// classifyFailure inspects a transport-level error the way this
// gateway's retry loop needs to: timeouts and connection resets are
// worth retrying, everything else that isn't a 5xx/429 status is not.
func classifyFailure(err error) failureType {
	if err == nil {
		return failureNone
	}
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return failureConnection
	}
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return failureConnection
	}
	return failurePermanent
}

// IsServerFailure reports whether err represents a provider-side
// outage (5xx, 429, timeout, connection failure) as opposed to a
// permanent rejection like a bad request or invalid credential, so a
// caller can decide whether the provider deserves a cooldown.
func IsServerFailure(err error) bool {
	if httpErr, ok := err.(*statusError); ok {
		ft := httpErr.failureType()
		return ft == failureServerError || ft == failureRateLimit
	}
	ft := classifyFailure(err)
	return ft == failureTimeout || ft == failureConnection
}

func (e *statusError) failureType() failureType {
	switch {
	case e.StatusCode >= 500:
		return failureServerError
	case e.StatusCode == 429:
		return failureRateLimit
	default:
		return failurePermanent
	}
}
