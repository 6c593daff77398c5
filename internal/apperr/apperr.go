// Package apperr defines the typed failure taxonomy shared by the
// authorization, quota, and billing layers. Handlers branch on the code,
// never on message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeFreeQuotaExceeded Code = "FREE_QUOTA_EXCEEDED"
	CodePlanQuotaExceeded Code = "PLAN_QUOTA_EXCEEDED"
	CodeInvalidSignature  Code = "INVALID_SIGNATURE"
	CodeInternal          Code = "INTERNAL"
)

type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a bare error carrying the given code.
func New(code Code) error {
	return &Error{Code: code}
}

// Wrap attaches a code to an underlying error. A nil err returns nil.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// Internal wraps a storage or transient failure. It must never be collapsed
// into an authorization or quota decision.
func Internal(err error) error {
	return Wrap(CodeInternal, err)
}

// CodeOf extracts the code from err, defaulting to INTERNAL for untyped
// errors so transient failures are never mistaken for access decisions.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code to its response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFreeQuotaExceeded, CodePlanQuotaExceeded:
		return http.StatusPaymentRequired
	case CodeInvalidSignature:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
