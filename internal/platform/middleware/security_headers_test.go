package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveWithHeaders(t *testing.T, hsts bool, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/123456789", nil)
	rec := httptest.NewRecorder()
	err := SecurityHeaders(hsts)(handler)(e.NewContext(req, rec))
	return rec, err
}

func TestSecurityHeaders_APIHeaders(t *testing.T) {
	rec, err := serveWithHeaders(t, false, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"hn": "123456789"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, kv := range apiHeaders {
		if got := rec.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("header %s: got %q, want %q", kv[0], got, kv[1])
		}
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("patient responses must not be cacheable")
	}
}

func TestSecurityHeaders_HSTSOnlyWhenEnabled(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	rec, _ := serveWithHeaders(t, false, ok)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS in development, got %q", got)
	}

	rec, _ = serveWithHeaders(t, true, ok)
	if got := rec.Header().Get("Strict-Transport-Security"); got != hstsValue {
		t.Errorf("HSTS: got %q, want %q", got, hstsValue)
	}
}

func TestSecurityHeaders_SetOnErrorResponses(t *testing.T) {
	rec, err := serveWithHeaders(t, true, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 to propagate, got %v", err)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected headers even when the handler fails")
	}
}
