// Package apierr implements the gateway's error taxonomy: a small set of
// typed errors that carry their own HTTP status, so transport handlers
// never have to guess a status code from a generic error string.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the fixed error categories the gateway recognizes.
type Kind string

const (
	KindValidation     Kind = "validation_failure"
	KindAuthentication Kind = "authentication_failure"
	KindAuthorization  Kind = "authorization_failure"
	KindNotFound       Kind = "not_found"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindUpstream       Kind = "upstream_failure"
	KindInternal       Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	KindValidation:      http.StatusBadRequest,
	KindAuthentication:  http.StatusUnauthorized,
	KindAuthorization:   http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindQuotaExceeded:   http.StatusTooManyRequests,
	KindPayloadTooLarge: http.StatusRequestEntityTooLarge,
	KindUpstream:        http.StatusBadGateway,
	KindInternal:        http.StatusInternalServerError,
}

// Error is the typed error carried through the pipeline. Detail is the
// human-facing message; it MUST NOT leak internal state for auth failures
// (spec requires a uniform, oracle-free message there).
type Error struct {
	Kind   Kind
	Detail string
	Err    error // wrapped cause, not serialized to the client
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code associated with e's Kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Validation, Auth, NotFound, etc. are small constructors mirroring the
// taxonomy in spec §7, used at call sites instead of ad hoc fmt.Errorf.
func Validation(detail string) *Error { return New(KindValidation, detail) }

// Authentication always returns the same generic detail regardless of the
// underlying cause (bad format, expired, revoked, no match) so callers
// cannot distinguish them and enumerate valid credentials.
func Authentication() *Error {
	return New(KindAuthentication, "invalid or missing credentials")
}

func Authorization(detail string) *Error { return New(KindAuthorization, detail) }
func NotFound(detail string) *Error      { return New(KindNotFound, detail) }
func QuotaExceeded(detail string) *Error { return New(KindQuotaExceeded, detail) }
func PayloadTooLarge(detail string) *Error {
	return New(KindPayloadTooLarge, detail)
}
func Upstream(detail string, err error) *Error {
	return Wrap(KindUpstream, detail, err)
}
func Internal(detail string, err error) *Error {
	return Wrap(KindInternal, detail, err)
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the HTTP status to use for err, defaulting to 500 for
// errors that are not *Error (an uncaught InternalError per spec §7).
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status()
	}
	return http.StatusInternalServerError
}
