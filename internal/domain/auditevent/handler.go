package auditevent

import (
	"net/http"
	"time"

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
	events := api.Group("/audit-events", auth.RequireRole("admin"))
	events.GET("", h.list)
	events.GET("/:id", h.get)
}

func (h *Handler) list(c echo.Context) error {
	f := ListFilter{
		Action:   c.QueryParam("action"),
		Resource: c.QueryParam("resource"),
		Outcome:  c.QueryParam("outcome"),
	}
	if v := c.QueryParam("actor"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid actor id")
		}
		f.ActorID = &id
	}
	if v := c.QueryParam("record"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
		}
		f.RecordID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		ts, err := parseTimeParam(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be a date or RFC3339 timestamp")
		}
		f.From = &ts
	}
	if v := c.QueryParam("to"); v != "" {
		ts, err := parseTimeParam(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be a date or RFC3339 timestamp")
		}
		f.To = &ts
	}

	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	events, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, pg.Limit, pg.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ev, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// parseTimeParam accepts a bare date or a full RFC3339 timestamp.
func parseTimeParam(v string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02", v); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, v)
}
