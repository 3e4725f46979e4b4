package audit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

type captureSink struct {
	mu      sync.Mutex
	entries []*Entry
}

func (s *captureSink) Record(e *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return true
}

func serve(sink Sink, method, path string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("request_id", "req-1")
			req := c.Request()
			actor := access.Actor{Email: "lab@hospital.test", Role: "lab"}
			c.SetRequest(req.WithContext(auth.WithActor(req.Context(), actor)))
			return next(c)
		}
	})
	e.Use(Middleware(sink))
	e.Any("/*", h)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestMiddleware_RecordsTransition(t *testing.T) {
	sink := &captureSink{}
	serve(sink, http.MethodPost, "/api/v1/patients/123456789/transition", ok)

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Action != "transition" || e.Resource != "patients" || e.HN != "123456789" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.ActorEmail != "lab@hospital.test" || e.ActorRole != "lab" || e.RequestID != "req-1" {
		t.Errorf("unexpected actor fields %+v", e)
	}
	if e.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", e.StatusCode)
	}
}

func TestMiddleware_SkipsReadsAndOtherPaths(t *testing.T) {
	sink := &captureSink{}
	serve(sink, http.MethodGet, "/api/v1/patients", ok)
	serve(sink, http.MethodPost, "/health", ok)
	if len(sink.entries) != 0 {
		t.Errorf("expected nothing recorded, got %d", len(sink.entries))
	}
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	sink := &captureSink{}
	serve(sink, http.MethodDelete, "/api/v1/patients/123456789", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "no")
	})
	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	if e := sink.entries[0]; e.Action != "delete" || e.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestAction(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/v1/patients", "create"},
		{http.MethodPatch, "/api/v1/patients/123456789", "update"},
		{http.MethodPut, "/api/v1/staff/a@b.c", "update"},
		{http.MethodDelete, "/api/v1/messages/x", "delete"},
		{http.MethodPost, "/api/v1/patients/123456789/transition", "transition"},
	}
	for _, tt := range tests {
		if got := action(tt.method, tt.path); got != tt.want {
			t.Errorf("action(%s %s) = %s, want %s", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestHNFromPath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/patients/123456789":           "123456789",
		"/api/v1/patients/123456789/lab-tests": "123456789",
		"/api/v1/patients/import":              "",
		"/api/v1/patients/12345678a":           "",
		"/api/v1/messages/123456789":           "",
	}
	for path, want := range tests {
		if got := hnFromPath(path); got != want {
			t.Errorf("hnFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
