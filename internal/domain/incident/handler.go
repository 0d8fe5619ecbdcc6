package incident

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
	inc := api.Group("/incidents")
	inc.POST("", h.create)
	inc.GET("", h.list)
	inc.GET("/export", h.export, auth.RequireRole("quality"))
	inc.GET("/:id", h.get)
	inc.PUT("/:id", h.update)
	inc.DELETE("/:id", h.remove, auth.RequireRole("admin"))
	inc.POST("/:id/submit", h.submit)
	inc.POST("/:id/approve", h.approve)
	inc.POST("/:id/reject", h.reject)
	inc.POST("/:id/close", h.close, auth.RequireRole("quality"))
	inc.GET("/:id/approvals", h.listApprovals)
	inc.POST("/:id/attachments", h.uploadAttachment)
	inc.GET("/:id/attachments", h.listAttachments)

	api.GET("/approvals/pending", h.pendingApprovals)
	api.GET("/attachments/:id", h.downloadAttachment)
	api.DELETE("/attachments/:id", h.removeAttachment)
}

func currentActor(c echo.Context) (auth.Actor, error) {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	return actor, nil
}

// parseFilter reads the listing query parameters shared by the list and
// export endpoints. Pagination is layered on separately.
func parseFilter(c echo.Context) (ListFilter, error) {
	f := ListFilter{
		Type:      c.QueryParam("type"),
		Status:    c.QueryParam("status"),
		HarmLevel: c.QueryParam("harm_level"),
		Query:     c.QueryParam("q"),
	}
	if f.Type == "" {
		f.Type = c.QueryParam("incident_type")
	}
	if v := c.QueryParam("department"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid department id")
		}
		f.DepartmentID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		}
		f.To = &t
	}
	return f, nil
}

func (h *Handler) create(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req IncidentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	det, err := h.svc.Create(c.Request().Context(), actor, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, det)
}

func (h *Handler) list(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	incidents, total, err := h.svc.List(c.Request().Context(), actor, f)
	if err != nil {
		return apperr.JSON(c, err)
	}
	if incidents == nil {
		incidents = []*Incident{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(incidents, total, pg.Limit, pg.Offset))
}

func (h *Handler) get(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	det, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, det)
}

func (h *Handler) update(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req IncidentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	det, err := h.svc.Update(c.Request().Context(), actor, id, &req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, det)
}

func (h *Handler) remove(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
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

func (h *Handler) submit(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inc, err := h.svc.Submit(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, inc)
}

type decisionRequest struct {
	Comment *string `json:"comment,omitempty"`
}

func (h *Handler) approve(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inc, err := h.svc.Approve(c.Request().Context(), actor, id, req.Comment)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, inc)
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) reject(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inc, err := h.svc.Reject(c.Request().Context(), actor, id, req.Comment)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, inc)
}

func (h *Handler) close(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inc, err := h.svc.Close(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, inc)
}

func (h *Handler) listApprovals(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	approvals, err := h.svc.ListApprovals(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, approvals)
}

func (h *Handler) pendingApprovals(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	pending, total, err := h.svc.PendingApprovals(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pending, total, pg.Limit, pg.Offset))
}

func (h *Handler) export(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	data, err := h.svc.Export(c.Request().Context(), actor, f)
	if err != nil {
		return apperr.JSON(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=incidents-%s.xlsx", time.Now().Format("2006-01-02")))
	return c.Blob(http.StatusOK, contentTypeXLSX, data)
}

func (h *Handler) uploadAttachment(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer src.Close()

	att, err := h.svc.UploadAttachment(c.Request().Context(), actor, id,
		file.Filename, file.Header.Get("Content-Type"), file.Size, src)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, att)
}

func (h *Handler) listAttachments(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	attachments, err := h.svc.ListAttachments(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, attachments)
}

func (h *Handler) downloadAttachment(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	att, rc, err := h.svc.DownloadAttachment(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", att.Filename))
	return c.Stream(http.StatusOK, att.ContentType, rc)
}

func (h *Handler) removeAttachment(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAttachment(c.Request().Context(), actor, id); err != nil {
		return apperr.JSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
