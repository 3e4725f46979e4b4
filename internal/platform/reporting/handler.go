package reporting

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

const (
	xlsxMIME         = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultRangeDays = 7
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := auth.RequireAdmin()
	api.GET("/reports/dashboard", h.Dashboard, admin)
	api.GET("/reports/daily", h.Daily, admin)
	api.GET("/reports/export", h.Export, admin)
}

func (h *Handler) Dashboard(c echo.Context) error {
	recent, _ := strconv.Atoi(c.QueryParam("recent"))
	d, err := h.svc.Dashboard(c.Request().Context(), recent)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

// dateRange reads ?from=&to= as YYYY-MM-DD. Missing values mean the last
// seven days ending today.
func (h *Handler) dateRange(c echo.Context) (time.Time, time.Time, error) {
	to := h.now().UTC()
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.InvalidState("invalid_date", "to %q is not YYYY-MM-DD", v)
		}
		to = t
	}
	from := to.AddDate(0, 0, -(defaultRangeDays - 1))
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.InvalidState("invalid_date", "from %q is not YYYY-MM-DD", v)
		}
		from = t
	}
	return from, to, nil
}

func (h *Handler) Daily(c echo.Context) error {
	from, to, err := h.dateRange(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	points, err := h.svc.Daily(c.Request().Context(), from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"from":   from.Format(time.DateOnly),
		"to":     to.Format(time.DateOnly),
		"series": points,
	})
}

func (h *Handler) Export(c echo.Context) error {
	from, to, err := h.dateRange(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	d, err := h.svc.Dashboard(ctx, 0)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	points, err := h.svc.Daily(ctx, from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, d, points); err != nil {
		return apperr.ToHTTP(apperr.Dependency("write report workbook", err))
	}
	name := fmt.Sprintf("bloodlink-report-%s.xlsx", to.Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}
