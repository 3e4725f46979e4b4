package workflow

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/workflow/states", h.States, auth.RequireStaff())
	api.POST("/patients/:hn/transition", h.Transition,
		auth.RequireCapability("update_status", access.CanUpdateStatus))
}

type transitionRequest struct {
	Process         string `json:"process"`
	Note            string `json:"note"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	ExpectedVersion *int   `json:"expected_version"`
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.InvalidState("invalid_appointment_date", "appointment_date %q is not a date (YYYY-MM-DD)", raw)
}

func (h *Handler) Transition(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := parseDate(req.AppointmentDate)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	p, err := h.engine.Transition(ctx, c.Param("hn"), req.Process, auth.ActorFromContext(ctx), Options{
		Note:            req.Note,
		AppointmentDate: date,
		AppointmentTime: strings.TrimSpace(req.AppointmentTime),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

type stateInfo struct {
	Process process.Process   `json:"process"`
	Label   string            `json:"label"`
	Bucket  process.Bucket    `json:"bucket"`
	Next    []process.Process `json:"next"`
}

// States describes every state and where the active policy lets it go.
func (h *Handler) States(c echo.Context) error {
	policy := h.engine.Policy()
	out := make([]stateInfo, 0, len(process.Ordered))
	for _, p := range process.Ordered {
		out = append(out, stateInfo{
			Process: p,
			Label:   p.Label(),
			Bucket:  process.Classify(string(p)),
			Next:    policy.Targets(p),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"policy": policy.Name(),
		"states": out,
	})
}
