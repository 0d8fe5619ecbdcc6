package indicator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/vigilo/vigilo/internal/platform/auth"
)

func newHandlerEnv() (*Handler, *echo.Echo, *indicatorEnv) {
	env := newIndicatorEnv()
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

func TestHandler_CreateConfig(t *testing.T) {
	h, e, _ := newHandlerEnv()

	body := `{
		"code": "FALLS_RATE",
		"name": "Falls per 1000 patient-days",
		"unit": "per_1000",
		"frequency": "monthly",
		"target": 7.0,
		"direction": "below"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/indicators", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)

	if err := h.create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var cfg Config
	json.Unmarshal(rec.Body.Bytes(), &cfg)
	if cfg.Multiplier != 1000 {
		t.Errorf("multiplier = %d, want 1000", cfg.Multiplier)
	}
	if !cfg.Active {
		t.Error("active = false, want true")
	}
}

func TestHandler_CreateConfig_Validation(t *testing.T) {
	h, e, _ := newHandlerEnv()

	req := httptest.NewRequest(http.MethodPost, "/api/indicators", strings.NewReader(`{"code": "X"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)

	if err := h.create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if _, ok := resp.Fields["unit"]; !ok {
		t.Errorf("missing unit validation, body = %s", rec.Body.String())
	}
}

func TestHandler_ListConfigs(t *testing.T) {
	h, e, env := newHandlerEnv()
	env.createConfig(t, "FALLS_RATE", UnitPer1000)
	env.createConfig(t, "HAND_HYGIENE", UnitPercent)

	req := httptest.NewRequest(http.MethodGet, "/api/indicators?active=true", nil)
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
	if resp["total"] != float64(2) {
		t.Errorf("total = %v, want 2", resp["total"])
	}
}

func TestHandler_RecordValue(t *testing.T) {
	h, e, env := newHandlerEnv()
	cfg := env.createConfig(t, "FALLS_RATE", UnitPer1000)

	req := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"period": "2026-03", "numerator": 3, "denominator": 412}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)
	c.SetParamNames("id")
	c.SetParamValues(cfg.ID.String())

	if err := h.recordValue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var v Value
	json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Period != "2026-03" {
		t.Errorf("period = %q", v.Period)
	}
	if want := 3.0 / 412.0 * 1000; v.Value != want {
		t.Errorf("value = %v, want %v", v.Value, want)
	}
}

func TestHandler_RecordValue_BadPeriod(t *testing.T) {
	h, e, env := newHandlerEnv()
	cfg := env.createConfig(t, "FALLS_RATE", UnitPer1000)

	req := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"period": "March 2026", "numerator": 3, "denominator": 412}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)
	c.SetParamNames("id")
	c.SetParamValues(cfg.ID.String())

	if err := h.recordValue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Trend(t *testing.T) {
	h, e, env := newHandlerEnv()
	cfg := env.createConfig(t, "FALLS_RATE", UnitPer1000)
	env.record(t, cfg.ID, "2026-01", 5, 420)
	env.record(t, cfg.ID, "2026-02", 2, 405)

	req := httptest.NewRequest(http.MethodGet, "/?from=2026-01&to=2026-02", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)
	c.SetParamNames("id")
	c.SetParamValues(cfg.ID.String())

	if err := h.trend(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var points []TrendPoint
	json.Unmarshal(rec.Body.Bytes(), &points)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].MeetsTarget == nil || *points[0].MeetsTarget {
		t.Errorf("first point meets_target = %v, want false", points[0].MeetsTarget)
	}
}

func TestHandler_ExportValues(t *testing.T) {
	h, e, env := newHandlerEnv()
	cfg := env.createConfig(t, "FALLS_RATE", UnitPer1000)
	env.record(t, cfg.ID, "2026-03", 3, 412)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(authed(req, quality()), rec)
	c.SetParamNames("id")
	c.SetParamValues(cfg.ID.String())

	if err := h.export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != contentTypeXLSX {
		t.Errorf("content type = %q", got)
	}
	if disp := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(disp, "FALLS_RATE") {
		t.Errorf("disposition = %q, want the indicator code in the filename", disp)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty export body")
	}
}

func TestHandler_IndicatorRoutes(t *testing.T) {
	h, e, _ := newHandlerEnv()
	api := e.Group("/api")

	h.RegisterRoutes(api)

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}

	expected := []string{
		"POST:/api/indicators",
		"GET:/api/indicators",
		"GET:/api/indicators/:id",
		"PUT:/api/indicators/:id",
		"POST:/api/indicators/:id/values",
		"GET:/api/indicators/:id/values",
		"GET:/api/indicators/:id/trend",
		"GET:/api/indicators/:id/export",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing expected route: %s", path)
		}
	}
}
