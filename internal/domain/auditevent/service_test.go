package auditevent

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo/internal/platform/middleware"
	"github.com/vigilo/vigilo/pkg/apperr"
)

type mockAuditRepo struct {
	events []*AuditEvent
}

func (m *mockAuditRepo) Insert(_ context.Context, ev *AuditEvent) error {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now().UTC()
	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *mockAuditRepo) GetByID(_ context.Context, id uuid.UUID) (*AuditEvent, error) {
	for _, ev := range m.events {
		if ev.ID == id {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("audit event %s", id)
}

func (m *mockAuditRepo) List(_ context.Context, f ListFilter) ([]*AuditEvent, int, error) {
	var matched []*AuditEvent
	for _, ev := range m.events {
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		if f.Resource != "" && ev.Resource != f.Resource {
			continue
		}
		if f.Outcome != "" && ev.Outcome != f.Outcome {
			continue
		}
		if f.ActorID != nil && (ev.ActorID == nil || *ev.ActorID != *f.ActorID) {
			continue
		}
		if f.RecordID != nil && (ev.RecordID == nil || *ev.RecordID != *f.RecordID) {
			continue
		}
		if f.From != nil && ev.OccurredAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !ev.OccurredAt.Before(*f.To) {
			continue
		}
		cp := *ev
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].OccurredAt.After(matched[j].OccurredAt) })
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func entry(action, resource string, status int) middleware.AuditEntry {
	return middleware.AuditEntry{
		UserID:     uuid.NewString(),
		UserRole:   "quality",
		Resource:   resource,
		Action:     action,
		Method:     "POST",
		Path:       "/api/" + resource,
		Timestamp:  time.Now().UTC(),
		StatusCode: status,
		IPAddress:  "10.0.0.7",
		UserAgent:  "test-agent",
		RequestID:  "req-1",
	}
}

func TestRecordAccess_PersistsMutations(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())

	if err := svc.RecordAccess(entry(ActionCreate, "risks", 201)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(repo.events))
	}

	ev := repo.events[0]
	if ev.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %q, want success", ev.Outcome)
	}
	if ev.ActorID == nil {
		t.Error("expected actor id to be parsed")
	}
	if ev.ActorRole != "quality" {
		t.Errorf("actor_role = %q", ev.ActorRole)
	}
}

func TestRecordAccess_SkipsPlainReads(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())

	if err := svc.RecordAccess(entry(ActionRead, "risks", 200)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.events) != 0 {
		t.Fatalf("expected no stored events for a risk read, got %d", len(repo.events))
	}
}

func TestRecordAccess_PersistsIncidentReads(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())

	e := entry(ActionRead, "incidents", 200)
	recordID := uuid.New()
	e.RecordID = recordID.String()
	if err := svc.RecordAccess(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(repo.events))
	}
	if repo.events[0].RecordID == nil || *repo.events[0].RecordID != recordID {
		t.Errorf("record_id = %v, want %s", repo.events[0].RecordID, recordID)
	}
}

func TestRecordAccess_DeniedOutcome(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())

	e := entry(ActionDelete, "users", 403)
	if err := svc.RecordAccess(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.events[0].Outcome != OutcomeDenied {
		t.Errorf("outcome = %q, want denied", repo.events[0].Outcome)
	}
}

func TestRecordAccess_UnparseableActor(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())

	e := entry(ActionCreate, "incidents", 201)
	e.UserID = ""
	if err := svc.RecordAccess(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.events[0].ActorID != nil {
		t.Errorf("expected nil actor id, got %v", repo.events[0].ActorID)
	}
}

func TestList_FilterValidation(t *testing.T) {
	svc := NewService(&mockAuditRepo{}, zerolog.Nop())
	ctx := context.Background()

	_, _, err := svc.List(ctx, ListFilter{Action: "browse", Limit: 20})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad action, got %v", err)
	}

	_, _, err = svc.List(ctx, ListFilter{Outcome: "partial", Limit: 20})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad outcome, got %v", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())
	ctx := context.Background()

	for i, res := range []string{"incidents", "risks", "users"} {
		e := entry(ActionCreate, res, 201)
		e.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := svc.RecordAccess(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	events, total, err := svc.List(ctx, ListFilter{Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if events[0].Resource != "users" {
		t.Errorf("newest event resource = %q, want users", events[0].Resource)
	}
	for i := 1; i < len(events); i++ {
		if events[i].OccurredAt.After(events[i-1].OccurredAt) {
			t.Error("events are not ordered newest first")
		}
	}
}

func TestList_FilterByResourceAndActor(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, zerolog.Nop())
	ctx := context.Background()

	actor := uuid.New()
	e := entry(ActionCreate, "incidents", 201)
	e.UserID = actor.String()
	if err := svc.RecordAccess(e); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.RecordAccess(entry(ActionCreate, "risks", 201)); err != nil {
		t.Fatalf("record: %v", err)
	}

	events, total, err := svc.List(ctx, ListFilter{Resource: "incidents", ActorID: &actor, Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("expected exactly one match, got total=%d len=%d", total, len(events))
	}
	if events[0].Resource != "incidents" {
		t.Errorf("resource = %q", events[0].Resource)
	}
}
