package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("transition: %w", NotFound("patient_not_found", "patient %s not found", "123456789"))
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("expected not_found, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindDependency {
		t.Error("expected unclassified errors to be dependency failures")
	}
	if !IsKind(wrapped, KindNotFound) || IsKind(wrapped, KindForbidden) {
		t.Error("IsKind mismatch")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Forbidden("status_update_denied", "role %q cannot update status", "พยาบาล")
	if err.Message != `role "พยาบาล" cannot update status` {
		t.Errorf("unexpected message %q", err.Message)
	}
	if err.Error() != `status_update_denied: role "พยาบาล" cannot update status` {
		t.Errorf("unexpected Error() %q", err.Error())
	}
}

func TestDependencyUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("load patient", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be unwrappable")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindInvalidState: http.StatusBadRequest,
		KindConflict:     http.StatusConflict,
		KindDependency:   http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestToHTTP(t *testing.T) {
	he := ToHTTP(InvalidState("invalid_hn", "HN must be 9 digits"))
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
	body, ok := he.Message.(map[string]string)
	if !ok || body["code"] != "invalid_hn" {
		t.Errorf("unexpected body %#v", he.Message)
	}

	he = ToHTTP(Dependency("query", errors.New("secret dsn in error")))
	if he.Code != http.StatusInternalServerError || he.Message != "internal error" {
		t.Errorf("expected opaque 500, got %d %v", he.Code, he.Message)
	}

	passthrough := echo.NewHTTPError(http.StatusTeapot, "teapot")
	if ToHTTP(passthrough) != passthrough {
		t.Error("expected echo errors to pass through")
	}
}
