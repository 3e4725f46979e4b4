package patient

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/pkg/apperr"
	"github.com/bloodlink/bloodlink/pkg/pagination"
)

const (
	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// exportLimit bounds a single workbook export.
	exportLimit = 10000
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes attaches the role gates per route; services still apply the
// responsibility-dependent checks.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireStaff()
	api.GET("/patients", h.List, staff)
	api.GET("/patients/export", h.Export, staff)
	api.GET("/patients/:hn", h.Get, staff)
	api.GET("/patients/:hn/history", h.History, staff)
	api.GET("/patients/:hn/lab-tests", h.LabTests, staff)
	api.PATCH("/patients/:hn", h.Update, staff)
	api.DELETE("/patients/:hn", h.Delete, staff)

	add := auth.RequireCapability("add_patient", access.CanAddPatient)
	api.POST("/patients", h.Create, add)
	api.POST("/patients/import", h.Import, add)

	lab := auth.RequireCapability("edit_lab", access.CanEditLab)
	api.POST("/patients/:hn/lab-tests", h.RecordLabResult, lab)
	api.PATCH("/lab-tests/:id", h.UpdateLabResult, lab)
}

func (h *Handler) Create(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := h.svc.Create(ctx, &p, auth.ActorFromContext(ctx)); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, &p)
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("hn"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("process"); v != "" {
		p, err := process.Parse(v)
		if err != nil {
			return f, err
		}
		f.Process = p
	}
	if v := c.QueryParam("bucket"); v != "" {
		b, ok := process.ParseBucket(v)
		if !ok {
			return f, apperr.InvalidState("invalid_bucket", "invalid bucket: %s", v)
		}
		f.Bucket = b
	}
	if v := c.QueryParam("status"); v != "" {
		st, ok := ParseStatus(v)
		if !ok {
			return f, apperr.InvalidState("invalid_status", "invalid status: %s", v)
		}
		f.Status = st
	}
	f.Search = c.QueryParam("q")
	if mine, _ := strconv.ParseBool(c.QueryParam("mine")); mine {
		f.ResponsibleEmail = auth.ActorFromContext(c.Request().Context()).Email
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	f, err := h.filterFromQuery(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	var u Update
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.Update(ctx, c.Param("hn"), u, auth.ActorFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, c.Param("hn"), auth.ActorFromContext(ctx)); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) History(c echo.Context) error {
	events, err := h.svc.History(c.Request().Context(), c.Param("hn"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) LabTests(c echo.Context) error {
	tests, err := h.svc.LabTests(c.Request().Context(), c.Param("hn"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, tests)
}

type labResultRequest struct {
	Results map[string]Result `json:"results"`
	Note    *string           `json:"note"`
}

func (h *Handler) RecordLabResult(c echo.Context) error {
	var req labResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	note := ""
	if req.Note != nil {
		note = *req.Note
	}
	ctx := c.Request().Context()
	t, err := h.svc.RecordLabResult(ctx, c.Param("hn"), req.Results, note, auth.ActorFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateLabResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lab test id")
	}
	var req labResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	t, err := h.svc.UpdateLabResult(ctx, id, req.Results, req.Note, auth.ActorFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

// Import accepts either a multipart "file" xlsx upload or a JSON body of
// the form {"patients": [...]}.
func (h *Handler) Import(c echo.Context) error {
	var rows []ImportRow
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot open upload")
		}
		defer f.Close()
		if rows, err = ParseWorkbook(f); err != nil {
			return apperr.ToHTTP(err)
		}
	} else {
		var body struct {
			Patients []ImportRow `json:"patients"`
		}
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		rows = body.Patients
	}

	ctx := c.Request().Context()
	res, err := h.svc.Import(ctx, rows, auth.ActorFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Export(c echo.Context) error {
	f, err := h.filterFromQuery(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	items, _, err := h.svc.List(c.Request().Context(), f, exportLimit, 0)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, items); err != nil {
		return apperr.ToHTTP(apperr.Dependency("write workbook", err))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="patients.xlsx"`)
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}
