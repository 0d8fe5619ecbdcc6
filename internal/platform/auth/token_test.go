package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestTokenIssuer_Issue(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, 1*time.Hour)

	tokenStr, expiresAt, err := issuer.Issue("user-1", "quality", "dept-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenStr == "" {
		t.Fatal("expected non-empty token")
	}

	remaining := time.Until(expiresAt)
	if remaining < 59*time.Minute || remaining > 61*time.Minute {
		t.Errorf("expected expiry about an hour out, got %v", remaining)
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, 1*time.Hour)

	tokenStr, _, err := issuer.Issue("user-42", "director", "dept-surgery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "user-42" {
			t.Errorf("expected user-42, got %s", uid)
		}
		if role := RoleFromContext(ctx); role != "director" {
			t.Errorf("expected director, got %s", role)
		}
		if dept := DepartmentFromContext(ctx); dept != "dept-surgery" {
			t.Errorf("expected dept-surgery, got %s", dept)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	h := mw(handler)
	if err := h(c); err != nil {
		t.Fatalf("middleware rejected issued token: %v", err)
	}
}

func TestTokenIssuer_ExpiredRejected(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, -1*time.Minute)

	tokenStr, _, err := issuer.Issue("user-1", "staff", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	h := mw(handler)
	err = h(c)

	if err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}
