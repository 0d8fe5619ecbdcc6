package auditevent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo/internal/platform/auth"
)

func newHandlerEnv() (*Handler, *echo.Echo, *Service, *mockAuditRepo) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())
	return NewHandler(svc), echo.New(), svc, repo
}

func adminReq(req *http.Request) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "7b0d0da5-2f4a-4f07-9f6b-6f3f8f1d9d10")
	ctx = context.WithValue(ctx, auth.UserRoleKey, "admin")
	return req.WithContext(ctx)
}

func TestHandler_ListAuditEvents(t *testing.T) {
	h, e, svc, _ := newHandlerEnv()
	if err := svc.RecordAccess(entry(ActionCreate, "incidents", 201)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.RecordAccess(entry(ActionUpdate, "risks", 200)); err != nil {
		t.Fatalf("record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/audit-events", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(adminReq(req), rec)

	if err := h.list(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	for _, key := range []string{"data", "total", "limit", "offset", "has_more"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("expected key %q in list envelope: %s", key, rec.Body.String())
		}
	}
	if resp["total"] != float64(2) {
		t.Errorf("total = %v, want 2", resp["total"])
	}
}

func TestHandler_ListAuditEvents_Filtered(t *testing.T) {
	h, e, svc, _ := newHandlerEnv()
	if err := svc.RecordAccess(entry(ActionCreate, "incidents", 201)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.RecordAccess(entry(ActionDelete, "users", 200)); err != nil {
		t.Fatalf("record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/audit-events?action=delete", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(adminReq(req), rec)

	if err := h.list(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["total"] != float64(1) {
		t.Errorf("total = %v, want 1", resp["total"])
	}
}

func TestHandler_ListAuditEvents_BadParams(t *testing.T) {
	h, e, _, _ := newHandlerEnv()

	for _, query := range []string{"actor=nope", "record=nope", "from=13-2026", "to=tomorrow"} {
		req := httptest.NewRequest(http.MethodGet, "/api/audit-events?"+query, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(adminReq(req), rec)

		err := h.list(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("query %q: expected 400 HTTP error, got %v", query, err)
		}
	}
}

func TestHandler_ListAuditEvents_BadAction(t *testing.T) {
	h, e, _, _ := newHandlerEnv()

	req := httptest.NewRequest(http.MethodGet, "/api/audit-events?action=browse", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(adminReq(req), rec)

	if err := h.list(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_GetAuditEvent(t *testing.T) {
	h, e, svc, repo := newHandlerEnv()
	if err := svc.RecordAccess(entry(ActionCreate, "incidents", 201)); err != nil {
		t.Fatalf("record: %v", err)
	}
	stored := repo.events[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(adminReq(req), rec)
	c.SetParamNames("id")
	c.SetParamValues(stored.ID.String())

	if err := h.get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var ev AuditEvent
	json.Unmarshal(rec.Body.Bytes(), &ev)
	if ev.ID != stored.ID {
		t.Errorf("id = %s, want %s", ev.ID, stored.ID)
	}
	if ev.Resource != "incidents" {
		t.Errorf("resource = %q", ev.Resource)
	}
}

func TestHandler_GetAuditEvent_InvalidID(t *testing.T) {
	h, e, _, _ := newHandlerEnv()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(adminReq(req), rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTP error, got %v", err)
	}
}

func TestHandler_AuditEventRoutes(t *testing.T) {
	h, e, _, _ := newHandlerEnv()
	api := e.Group("/api")

	h.RegisterRoutes(api)

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}

	expected := []string{
		"GET:/api/audit-events",
		"GET:/api/audit-events/:id",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing expected route: %s", path)
		}
	}
}
