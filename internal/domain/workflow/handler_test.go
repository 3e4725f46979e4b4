package workflow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/patient"
	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

func transitionContext(e *echo.Echo, body string, actor access.Actor) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("hn")
	c.SetParamValues(testHN)
	return c, rec
}

func TestHandler_Transition(t *testing.T) {
	f := newFixture(nil)
	f.patients.items[testHN].Process = process.Completed
	h, e := NewHandler(f.engine), echo.New()

	body := `{"process":"นัดหมาย","appointment_date":"2025-03-14","appointment_time":"10:00","expected_version":1}`
	c, rec := transitionContext(e, body, labActor)
	if err := h.Transition(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p patient.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Process != process.Scheduled || p.AppointmentTime != "10:00" || p.AppointmentDate == nil {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestHandler_TransitionErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		actor access.Actor
		code  int
	}{
		{"forbidden", `{"process":"drawn"}`, doctorActor, http.StatusForbidden},
		{"unknown state", `{"process":"waiting"}`, labActor, http.StatusBadRequest},
		{"bad date", `{"process":"scheduled","appointment_date":"14/03/2025"}`, labActor, http.StatusBadRequest},
		{"stale version", `{"process":"drawn","expected_version":7}`, labActor, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			h, e := NewHandler(f.engine), echo.New()
			c, _ := transitionContext(e, tt.body, tt.actor)
			err := h.Transition(c)
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != tt.code {
				t.Fatalf("expected %d, got %v", tt.code, err)
			}
		})
	}
}

func TestHandler_States(t *testing.T) {
	f := newFixture(Forward())
	h, e := NewHandler(f.engine), echo.New()
	rec := httptest.NewRecorder()
	if err := h.States(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Policy string      `json:"policy"`
		States []stateInfo `json:"states"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Policy != PolicyForward || len(resp.States) != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.States[0].Label != "นัดหมาย" || len(resp.States[0].Next) != 4 {
		t.Errorf("unexpected first state %+v", resp.States[0])
	}
}
