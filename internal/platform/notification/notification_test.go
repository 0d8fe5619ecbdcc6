package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Template engine
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{
		ID:      "custom-notice",
		Name:    "Custom Notice",
		Subject: "Hello {{name}}",
		Body:    "This is a notice for {{name}} about {{topic}}.",
	})

	subject, body, err := e.Render("custom-notice", map[string]string{
		"name":  "Alice",
		"topic": "hand hygiene audit",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("expected subject 'Hello Alice', got %q", subject)
	}
	if body != "This is a notice for Alice about hand hygiene audit." {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	e := NewTemplateEngine()
	_, _, err := e.Render("no-such-template", nil)
	if err == nil {
		t.Fatal("expected error for missing template")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	e := NewTemplateEngine()

	builtIn := []string{
		TemplateIncidentSubmitted,
		TemplateIncidentApproved,
		TemplateIncidentRejected,
		TemplateActionAssigned,
	}

	for _, id := range builtIn {
		subject, body, err := e.Render(id, map[string]string{})
		if err != nil {
			t.Errorf("built-in template %q: %v", id, err)
			continue
		}
		if subject == "" || body == "" {
			t.Errorf("built-in template %q rendered empty subject or body", id)
		}
	}
}

func TestTemplateEngine_RenderWithData(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render(TemplateIncidentSubmitted, map[string]string{
		"report_no":     "PSR-2025-00042",
		"incident_type": "fall",
		"department":    "ICU",
		"reporter":      "Nurse Kim",
		"level":         "1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(subject, "PSR-2025-00042") {
		t.Errorf("expected report number in subject, got %q", subject)
	}
	if !strings.Contains(body, "fall") || !strings.Contains(body, "ICU") {
		t.Errorf("expected incident type and department in body, got %q", body)
	}
	if !strings.Contains(body, "level 1") {
		t.Errorf("expected level in body, got %q", body)
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	e := NewTemplateEngine()

	// Only report_no supplied; other placeholders stay as-is.
	subject, body, err := e.Render(TemplateIncidentRejected, map[string]string{
		"report_no": "PSR-2025-00007",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(subject, "PSR-2025-00007") {
		t.Errorf("expected report number in subject, got %q", subject)
	}
	if !strings.Contains(body, "{{comment}}") {
		t.Errorf("expected unreplaced placeholder to remain, got %q", body)
	}
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

func TestLogEmailSender_Sends(t *testing.T) {
	sender := NewLogEmailSender(zerolog.Nop())

	err := sender.SendEmail(context.Background(), "quality@example.org", "subject", "body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Notification manager
// ---------------------------------------------------------------------------

func TestNotificationManager_Send(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewNotificationManager(sender, NewTemplateEngine())

	n := &Notification{
		Recipient: "manager@example.org",
		Subject:   "Incident PSR-2025-00001 awaits your review",
		Body:      "Pending level 1 review.",
	}

	err := mgr.Send(context.Background(), n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if n.Status != "sent" {
		t.Errorf("expected status=sent, got %s", n.Status)
	}
	if n.SentAt == nil {
		t.Error("expected SentAt to be set")
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if calls[0].To != "manager@example.org" {
		t.Errorf("expected recipient manager@example.org, got %s", calls[0].To)
	}
}

func TestNotificationManager_SendFailed(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp connection refused"}
	mgr := NewNotificationManager(sender, NewTemplateEngine())

	n := &Notification{
		Recipient: "reporter@example.org",
		Subject:   "subject",
		Body:      "body",
	}

	err := mgr.Send(context.Background(), n)
	if err == nil {
		t.Fatal("expected error from failing sender")
	}

	if n.Status != "failed" {
		t.Errorf("expected status=failed, got %s", n.Status)
	}
	if n.Error != "smtp connection refused" {
		t.Errorf("expected error recorded, got %q", n.Error)
	}

	// The failed notice is still stored and retrievable.
	stored, getErr := mgr.GetNotification(context.Background(), n.ID)
	if getErr != nil {
		t.Fatalf("failed notice should be stored: %v", getErr)
	}
	if stored.Status != "failed" {
		t.Errorf("expected stored status=failed, got %s", stored.Status)
	}
}

func TestNotificationManager_SendFromTemplate(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewNotificationManager(sender, NewTemplateEngine())

	n, err := mgr.SendFromTemplate(context.Background(), TemplateIncidentRejected, map[string]string{
		"report_no": "PSR-2025-00042",
		"level":     "2",
		"comment":   "missing medication details",
	}, "reporter@example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.TemplateID != TemplateIncidentRejected {
		t.Errorf("expected template id recorded, got %s", n.TemplateID)
	}
	if !strings.Contains(n.Body, "missing medication details") {
		t.Errorf("expected comment in body, got %q", n.Body)
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if !strings.Contains(calls[0].Subject, "PSR-2025-00042") {
		t.Errorf("expected report number in sent subject, got %q", calls[0].Subject)
	}
}

func TestNotificationManager_SendFromTemplate_Missing(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, NewTemplateEngine())

	_, err := mgr.SendFromTemplate(context.Background(), "nope", nil, "x@example.org")
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestNotificationManager_GetNotification(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, NewTemplateEngine())

	n := &Notification{Recipient: "a@example.org", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := mgr.GetNotification(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != n.ID {
		t.Errorf("expected ID=%s, got %s", n.ID, got.ID)
	}
}

func TestNotificationManager_GetNotFound(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, NewTemplateEngine())

	_, err := mgr.GetNotification(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("expected error for missing notification")
	}
}

func TestNotificationManager_ListByRecipient(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, NewTemplateEngine())

	for i := 0; i < 3; i++ {
		n := &Notification{Recipient: "quality@example.org", Subject: fmt.Sprintf("s%d", i), Body: "b"}
		if err := mgr.Send(context.Background(), n); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	other := &Notification{Recipient: "someone-else@example.org", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), other); err != nil {
		t.Fatalf("send: %v", err)
	}

	list, err := mgr.ListByRecipient(context.Background(), "quality@example.org", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 notifications, got %d", len(list))
	}
}

func TestNotificationManager_Retry(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	mgr := NewNotificationManager(sender, NewTemplateEngine())

	n := &Notification{Recipient: "r@example.org", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), n); err == nil {
		t.Fatal("expected initial send to fail")
	}

	// Relay comes back.
	sender.ShouldFail = false

	if err := mgr.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}

	got, _ := mgr.GetNotification(context.Background(), n.ID)
	if got.Status != "sent" {
		t.Errorf("expected status=sent after retry, got %s", got.Status)
	}
	if got.Error != "" {
		t.Errorf("expected error cleared after retry, got %q", got.Error)
	}
}

func TestNotificationManager_RetryNonFailed(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, NewTemplateEngine())

	n := &Notification{Recipient: "r@example.org", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}

	err := mgr.Retry(context.Background(), n.ID)
	if err == nil {
		t.Fatal("expected error retrying a sent notification")
	}
}

func TestNotificationManager_Stats(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewNotificationManager(sender, NewTemplateEngine())

	for i := 0; i < 2; i++ {
		n := &Notification{Recipient: "ok@example.org", Subject: "s", Body: "b"}
		if err := mgr.Send(context.Background(), n); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	sender.ShouldFail = true
	sender.FailError = "boom"
	bad := &Notification{Recipient: "bad@example.org", Subject: "s", Body: "b"}
	mgr.Send(context.Background(), bad)

	stats := mgr.NotificationStats(context.Background())
	if stats["sent"] != 2 {
		t.Errorf("expected 2 sent, got %d", stats["sent"])
	}
	if stats["failed"] != 1 {
		t.Errorf("expected 1 failed, got %d", stats["failed"])
	}
}

func TestNotificationManager_ConcurrentSend(t *testing.T) {
	mgr := NewNotificationManager(&MockEmailSender{}, NewTemplateEngine())

	var wg sync.WaitGroup
	const goroutines = 30

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			notice := &Notification{
				Recipient: "concurrent@example.org",
				Subject:   fmt.Sprintf("notice %d", n),
				Body:      "b",
			}
			if err := mgr.Send(context.Background(), notice); err != nil {
				t.Errorf("goroutine %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	stats := mgr.NotificationStats(context.Background())
	if stats["sent"] != goroutines {
		t.Errorf("expected %d sent, got %d", goroutines, stats["sent"])
	}
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

func newTestHandler() (*NotificationManager, *echo.Echo) {
	mgr := NewNotificationManager(&MockEmailSender{}, NewTemplateEngine())
	h := NewNotificationHandler(mgr)
	e := echo.New()
	g := e.Group("")
	h.RegisterRoutes(g)
	return mgr, e
}

func TestNotificationHandler_GetNotification(t *testing.T) {
	mgr, e := newTestHandler()

	n := &Notification{Recipient: "r@example.org", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/notifications/"+n.ID, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != n.ID {
		t.Errorf("expected ID=%s, got %s", n.ID, got.ID)
	}
}

func TestNotificationHandler_GetNotFound(t *testing.T) {
	_, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/notifications/nonexistent", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestNotificationHandler_ListByRecipient(t *testing.T) {
	mgr, e := newTestHandler()

	for i := 0; i < 2; i++ {
		n := &Notification{Recipient: "list@example.org", Subject: "s", Body: "b"}
		if err := mgr.Send(context.Background(), n); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/notifications?recipient=list@example.org", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var list []Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(list))
	}
}

func TestNotificationHandler_ListRequiresRecipient(t *testing.T) {
	_, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestNotificationHandler_RetryNotification(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	mgr := NewNotificationManager(sender, NewTemplateEngine())
	h := NewNotificationHandler(mgr)
	e := echo.New()
	h.RegisterRoutes(e.Group(""))

	n := &Notification{Recipient: "r@example.org", Subject: "s", Body: "b"}
	mgr.Send(context.Background(), n)

	sender.ShouldFail = false

	req := httptest.NewRequest(http.MethodPost, "/notifications/"+n.ID+"/retry", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "sent" {
		t.Errorf("expected status=sent, got %s", got.Status)
	}
}

func TestNotificationHandler_Stats(t *testing.T) {
	mgr, e := newTestHandler()

	n := &Notification{Recipient: "r@example.org", Subject: "s", Body: "b"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/notifications/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats["sent"] != 1 {
		t.Errorf("expected 1 sent, got %d", stats["sent"])
	}
}
