package physician

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/radpipe/radpipe/internal/domain/study"
	"github.com/radpipe/radpipe/internal/domain/timewindow"
	"github.com/radpipe/radpipe/internal/platform/auth"
	"github.com/radpipe/radpipe/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/physicians", h.RegisterDoctor)
	admin.PUT("/physicians/:id", h.UpdateDoctor)
	admin.DELETE("/physicians/:id", h.DeactivateDoctor)

	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabStaff, auth.RolePhysician))
	read.GET("/physicians", h.ListDoctors)
	read.GET("/physicians/:id", h.GetDoctor)
	read.GET("/physicians/:id/worklist", h.Worklist)
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterDoctor(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "physician not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), &d); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "physician not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeactivateDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Deactivate(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "physician not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") != "false"
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg.Limit, pg.Offset))
}

func (h *Handler) Worklist(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	q := study.Query{
		DatePreset: timewindow.Preset(c.QueryParam("preset")),
		CustomFrom: c.QueryParam("from"),
		CustomTo:   c.QueryParam("to"),
		FreeText:   c.QueryParam("q"),
		Modality:   c.QueryParam("modality"),
		Patient:    c.QueryParam("patient"),
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	}
	if cat := c.QueryParam("category"); cat != "" {
		parsed, err := study.ParseCategory(cat)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
		}
		q.Category = parsed
	}
	if st := c.QueryParam("status"); st != "" {
		parsed, err := study.ParseWorkflowStatus(st)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
		}
		q.Status = parsed
	}
	res, err := h.svc.Worklist(c.Request().Context(), id, q)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "physician not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
