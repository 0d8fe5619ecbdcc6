package risk

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/pkg/apperr"
	"github.com/vigilo/vigilo/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	risks := api.Group("/risks")
	risks.POST("", h.create, auth.RequireRole("quality"))
	risks.GET("", h.list)
	risks.GET("/matrix", h.matrix)
	risks.GET("/:id", h.get)
	risks.PUT("/:id", h.update, auth.RequireRole("quality"))
	risks.DELETE("/:id", h.remove, auth.RequireRole("admin"))
	risks.POST("/:id/assessments", h.assess, auth.RequireRole("quality"))
	risks.GET("/:id/assessments", h.assessments)
}

func (h *Handler) create(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	var req CreateRiskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rk, err := h.svc.Create(c.Request().Context(), actor, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, rk)
}

func (h *Handler) list(c echo.Context) error {
	f := ListFilter{
		Category: c.QueryParam("category"),
		Level:    c.QueryParam("level"),
		Status:   c.QueryParam("status"),
		Query:    c.QueryParam("q"),
	}
	if v := c.QueryParam("department"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid department id")
		}
		f.DepartmentID = &id
	}

	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	risks, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return apperr.JSON(c, err)
	}
	if risks == nil {
		risks = []*Risk{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(risks, total, pg.Limit, pg.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rk, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, rk)
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
	var req UpdateRiskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rk, err := h.svc.Update(c.Request().Context(), actor, id, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, rk)
}

func (h *Handler) remove(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return apperr.JSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) assess(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req AssessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Assess(c.Request().Context(), actor, id, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) assessments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	history, err := h.svc.Assessments(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) matrix(c echo.Context) error {
	cells, err := h.svc.Matrix(c.Request().Context())
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, cells)
}
