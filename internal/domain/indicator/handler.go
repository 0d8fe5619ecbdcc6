package indicator

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/pkg/apperr"
	"github.com/vigilo/vigilo/pkg/pagination"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	inds := api.Group("/indicators")
	inds.POST("", h.create, auth.RequireRole("quality"))
	inds.GET("", h.list)
	inds.GET("/:id", h.get)
	inds.PUT("/:id", h.update, auth.RequireRole("quality"))
	inds.POST("/:id/values", h.recordValue, auth.RequireRole("quality"))
	inds.GET("/:id/values", h.values)
	inds.GET("/:id/trend", h.trend)
	inds.GET("/:id/export", h.export, auth.RequireRole("quality"))
}

func (h *Handler) create(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	var req CreateConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg, err := h.svc.Create(c.Request().Context(), actor, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) list(c echo.Context) error {
	f := ListFilter{
		Frequency: c.QueryParam("frequency"),
		Query:     c.QueryParam("q"),
	}
	if v := c.QueryParam("department"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid department id")
		}
		f.DepartmentID = &id
	}
	if v := c.QueryParam("active"); v == "true" || v == "false" {
		b := v == "true"
		f.Active = &b
	}

	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	configs, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return apperr.JSON(c, err)
	}
	if configs == nil {
		configs = []*Config{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(configs, total, pg.Limit, pg.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cfg, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) update(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg, err := h.svc.Update(c.Request().Context(), actor, id, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) recordValue(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req RecordValueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := h.svc.RecordValue(c.Request().Context(), actor, id, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) values(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	series, err := h.svc.Values(c.Request().Context(), id, c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, series)
}

func (h *Handler) trend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	points, err := h.svc.Trend(c.Request().Context(), id, c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, points)
}

func (h *Handler) export(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	data, code, err := h.svc.Export(c.Request().Context(), actor, id, c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return apperr.JSON(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=indicator-%s-%s.xlsx", code, time.Now().Format("2006-01-02")))
	return c.Blob(http.StatusOK, contentTypeXLSX, data)
}
