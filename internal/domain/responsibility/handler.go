package responsibility

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

type Handler struct {
	reg *Registry
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireStaff()
	api.GET("/patients/:hn/responsibility", h.List, staff)
	api.POST("/patients/:hn/responsibility", h.Add, staff)
	api.DELETE("/patients/:hn/responsibility/:email", h.Remove, staff)
	api.POST("/patients/bulk-assign", h.BulkAssign, auth.RequireCapability("bulk_assign", access.CanBulkAssign))
	api.GET("/staff/:email/patients", h.PatientsForStaff, auth.RequireAdmin())
}

type listResponse struct {
	Responsible   []*Assignment `json:"responsible"`
	IsResponsible bool          `json:"is_responsible"`
	CanEdit       bool          `json:"can_edit"`
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	hn := c.Param("hn")
	items, err := h.reg.List(ctx, hn)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	actor := auth.ActorFromContext(ctx)
	mine := false
	for _, a := range items {
		if strings.EqualFold(a.StaffEmail, actor.Email) {
			mine = true
			break
		}
	}
	return c.JSON(http.StatusOK, listResponse{
		Responsible:   items,
		IsResponsible: mine,
		CanEdit:       access.CanManageStaff(actor.Role, mine),
	})
}

type addRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Add(c echo.Context) error {
	var req addRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	added, err := h.reg.Add(ctx, c.Param("hn"), req.Email, auth.ActorFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]bool{"success": true, "added": added})
}

func (h *Handler) Remove(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.reg.Remove(ctx, c.Param("hn"), c.Param("email"), auth.ActorFromContext(ctx)); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type bulkRequest struct {
	HNs   []string `json:"hns"`
	Email string   `json:"email"`
}

func (h *Handler) BulkAssign(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	res, err := h.reg.BulkAssign(ctx, req.HNs, req.Email, auth.ActorFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

type caseloadResponse struct {
	Email string   `json:"email"`
	HNs   []string `json:"hns"`
	Count int      `json:"count"`
}

// PatientsForStaff lists the patients a staff member is responsible for.
func (h *Handler) PatientsForStaff(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.Param("email")
	hns, err := h.reg.PatientsFor(ctx, email, auth.ActorFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if hns == nil {
		hns = []string{}
	}
	return c.JSON(http.StatusOK, caseloadResponse{Email: email, HNs: hns, Count: len(hns)})
}
