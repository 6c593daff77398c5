package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOfTyped(t *testing.T) {
	err := New(CodeForbidden)
	if CodeOf(err) != CodeForbidden {
		t.Errorf("code = %q, want %q", CodeOf(err), CodeForbidden)
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := Wrap(CodeNotFound, errors.New("no such form"))
	outer := fmt.Errorf("load form: %w", inner)
	if CodeOf(outer) != CodeNotFound {
		t.Errorf("code = %q, want %q", CodeOf(outer), CodeNotFound)
	}
}

func TestCodeOfUntypedDefaultsToInternal(t *testing.T) {
	if CodeOf(errors.New("disk io")) != CodeInternal {
		t.Error("untyped error should map to INTERNAL")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(CodeInternal, nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeFreeQuotaExceeded)
	if !HasCode(err, CodeFreeQuotaExceeded) {
		t.Error("expected HasCode true")
	}
	if HasCode(err, CodePlanQuotaExceeded) {
		t.Error("expected HasCode false for different code")
	}
	if HasCode(nil, CodeInternal) {
		t.Error("nil error has no code")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeFreeQuotaExceeded, http.StatusPaymentRequired},
		{CodePlanQuotaExceeded, http.StatusPaymentRequired},
		{CodeInvalidSignature, http.StatusBadRequest},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.code); got != c.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", c.code, got, c.want)
		}
	}
}
