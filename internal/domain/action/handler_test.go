package action

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
)

func newHandlerEnv() (*Handler, *echo.Echo, *actionEnv) {
	env := newActionEnv()
	return NewHandler(env.svc), echo.New(), env
}

func authed(req *http.Request, actor auth.Actor) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, actor.ID.String())
	ctx = context.WithValue(ctx, auth.UserRoleKey, actor.Role)
	if actor.DepartmentID != nil {
		ctx = context.WithValue(ctx, auth.UserDepartmentKey, actor.DepartmentID.String())
	}
	return req.WithContext(ctx)
}

func TestHandler_CreateAction(t *testing.T) {
	h, e, env := newHandlerEnv()

	body := fmt.Sprintf(`{
		"incident_id": %q,
		"title": "Review bed alarm configuration",
		"action_type": "corrective",
		"assignee_id": %q,
		"due_date": %q
	}`, env.incident, env.assignee, dueIn(7))
	req := httptest.NewRequest(http.MethodPost, "/api/actions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)

	if err := h.create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var a Action
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Status != StatusOpen {
		t.Errorf("status = %q, want open", a.Status)
	}
	if a.IncidentID != env.incident {
		t.Errorf("incident_id = %s", a.IncidentID)
	}
}

func TestHandler_CreateAction_Forbidden(t *testing.T) {
	h, e, env := newHandlerEnv()
	dept := env.dept
	staff := auth.Actor{ID: uuid.New(), Role: identity.RoleStaff, DepartmentID: &dept}

	body := fmt.Sprintf(`{"incident_id": %q, "title": "x", "action_type": "corrective", "assignee_id": %q, "due_date": %q}`,
		env.incident, env.assignee, dueIn(7))
	req := httptest.NewRequest(http.MethodPost, "/api/actions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, staff), rec)

	if err := h.create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_ListActions(t *testing.T) {
	h, e, env := newHandlerEnv()
	env.createAction(t)
	env.createAction(t)

	req := httptest.NewRequest(http.MethodGet, "/api/actions?assignee="+env.assignee.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)

	if err := h.list(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	for _, key := range []string{"data", "total", "limit", "offset", "has_more"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("expected key %q in list envelope: %s", key, rec.Body.String())
		}
	}
	if resp["total"] != float64(2) {
		t.Errorf("expected total 2, got %v", resp["total"])
	}
}

func TestHandler_ListActions_BadAssigneeID(t *testing.T) {
	h, e, _ := newHandlerEnv()

	req := httptest.NewRequest(http.MethodGet, "/api/actions?assignee=nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)

	err := h.list(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTP error, got %v", err)
	}
}

func TestHandler_GetAction_InvalidID(t *testing.T) {
	h, e, _ := newHandlerEnv()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTP error, got %v", err)
	}
}

func TestHandler_UpdateAction_AssigneeStatus(t *testing.T) {
	h, e, env := newHandlerEnv()
	a := env.createAction(t)
	dept := env.dept
	assignee := auth.Actor{ID: env.assignee, Role: identity.RoleStaff, DepartmentID: &dept}

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"in_progress"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, assignee), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated Action
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Status != StatusInProgress {
		t.Errorf("status = %q, want in_progress", updated.Status)
	}
}

func TestHandler_VerifyAction(t *testing.T) {
	h, e, env := newHandlerEnv()
	a := env.createAction(t)
	qm := quality()
	ctx := context.Background()

	completed := StatusCompleted
	if _, err := env.svc.Update(ctx, qm, a.ID, &UpdateActionRequest{Status: &completed}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"inspected on the ward"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, qm), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.verify(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var verified Action
	json.Unmarshal(rec.Body.Bytes(), &verified)
	if verified.Status != StatusVerified {
		t.Errorf("status = %q, want verified", verified.Status)
	}
	if verified.VerificationNote == nil || *verified.VerificationNote != "inspected on the ward" {
		t.Errorf("verification_note = %v", verified.VerificationNote)
	}
}

func TestHandler_CancelAction(t *testing.T) {
	h, e, env := newHandlerEnv()
	a := env.createAction(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var cancelled Action
	json.Unmarshal(rec.Body.Bytes(), &cancelled)
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}
}

func TestHandler_ActionRoutes(t *testing.T) {
	h, e, _ := newHandlerEnv()
	api := e.Group("/api")

	h.RegisterRoutes(api)

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}

	expected := []string{
		"POST:/api/actions",
		"GET:/api/actions",
		"GET:/api/actions/:id",
		"PUT:/api/actions/:id",
		"POST:/api/actions/:id/verify",
		"POST:/api/actions/:id/cancel",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing expected route: %s", path)
		}
	}
}
