package action

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/internal/platform/notification"
	"github.com/vigilo/vigilo/pkg/apperr"
)

// -- mocks --

type incidentRef struct {
	reportNo     string
	departmentID uuid.UUID
}

type mockActionRepo struct {
	actions   map[uuid.UUID]*Action
	incidents map[uuid.UUID]incidentRef
}

func newMockActionRepo() *mockActionRepo {
	return &mockActionRepo{
		actions:   map[uuid.UUID]*Action{},
		incidents: map[uuid.UUID]incidentRef{},
	}
}

func (m *mockActionRepo) Create(_ context.Context, a *Action) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.actions[a.ID] = &cp
	return nil
}

func (m *mockActionRepo) GetByID(_ context.Context, id uuid.UUID) (*Action, error) {
	a, ok := m.actions[id]
	if !ok {
		return nil, apperr.NotFoundf("action %s", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockActionRepo) Update(_ context.Context, a *Action) error {
	if _, ok := m.actions[a.ID]; !ok {
		return apperr.NotFoundf("action %s", a.ID)
	}
	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	m.actions[a.ID] = &cp
	return nil
}

func (m *mockActionRepo) List(_ context.Context, f ListFilter) ([]*Action, int, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	var matched []*Action
	for _, a := range m.actions {
		if f.IncidentID != nil && a.IncidentID != *f.IncidentID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.AssigneeID != nil && a.AssigneeID != *f.AssigneeID {
			continue
		}
		if f.DepartmentID != nil && (a.DepartmentID == nil || *a.DepartmentID != *f.DepartmentID) {
			continue
		}
		if f.Overdue {
			if a.Status != StatusOpen && a.Status != StatusInProgress {
				continue
			}
			if !a.DueDate.Before(today) {
				continue
			}
		}
		cp := *a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].DueDate.Before(matched[j].DueDate) })
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

func (m *mockActionRepo) ListByIncident(_ context.Context, incidentID uuid.UUID) ([]*Action, error) {
	var out []*Action
	for _, a := range m.actions {
		if a.IncidentID == incidentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockActionRepo) IncidentRef(_ context.Context, incidentID uuid.UUID) (string, uuid.UUID, error) {
	ref, ok := m.incidents[incidentID]
	if !ok {
		return "", uuid.Nil, apperr.NotFoundf("incident %s", incidentID)
	}
	return ref.reportNo, ref.departmentID, nil
}

type mockContacts struct {
	contacts map[uuid.UUID]Contact
}

func (m *mockContacts) Contact(_ context.Context, id uuid.UUID) (*Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, apperr.NotFoundf("user %s", id)
	}
	return &c, nil
}

type sentNotification struct {
	Template  string
	Recipient string
	Data      map[string]string
}

type mockNotifier struct {
	sent []sentNotification
}

func (m *mockNotifier) SendFromTemplate(_ context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error) {
	m.sent = append(m.sent, sentNotification{Template: templateID, Recipient: recipient, Data: data})
	return &notification.Notification{}, nil
}

// -- fixtures --

type actionEnv struct {
	svc      *Service
	repo     *mockActionRepo
	contacts *mockContacts
	notifier *mockNotifier
	incident uuid.UUID
	dept     uuid.UUID
	assignee uuid.UUID
}

func newActionEnv() *actionEnv {
	repo := newMockActionRepo()
	contacts := &mockContacts{contacts: map[uuid.UUID]Contact{}}
	notifier := &mockNotifier{}

	dept := uuid.New()
	incident := uuid.New()
	repo.incidents[incident] = incidentRef{reportNo: "PSR-2026-00007", departmentID: dept}

	assignee := uuid.New()
	contacts.contacts[assignee] = Contact{Name: "Lee Junho", Email: "junho@hospital.test"}

	return &actionEnv{
		svc:      NewService(repo, contacts, notifier, zerolog.Nop()),
		repo:     repo,
		contacts: contacts,
		notifier: notifier,
		incident: incident,
		dept:     dept,
		assignee: assignee,
	}
}

func quality() auth.Actor {
	return auth.Actor{ID: uuid.New(), Role: identity.RoleQuality}
}

func dueIn(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func (e *actionEnv) createAction(t *testing.T) *Action {
	t.Helper()
	a, err := e.svc.Create(context.Background(), quality(), &CreateActionRequest{
		IncidentID: e.incident,
		Title:      "Review bed alarm configuration",
		ActionType: TypeCorrective,
		AssigneeID: e.assignee,
		DueDate:    dueIn(7),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

// -- tests --

func TestCreateAction(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)

	if a.Status != StatusOpen {
		t.Errorf("status = %q, want open", a.Status)
	}
	if a.DepartmentID == nil || *a.DepartmentID != e.dept {
		t.Errorf("department not copied from the incident: %v", a.DepartmentID)
	}
	if a.Overdue {
		t.Error("a freshly created action with a future due date is not overdue")
	}

	if len(e.notifier.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(e.notifier.sent))
	}
	sent := e.notifier.sent[0]
	if sent.Template != notification.TemplateActionAssigned {
		t.Errorf("template = %q, want %q", sent.Template, notification.TemplateActionAssigned)
	}
	if sent.Recipient != "junho@hospital.test" {
		t.Errorf("recipient = %q, want the assignee", sent.Recipient)
	}
	if sent.Data["report_no"] != "PSR-2026-00007" {
		t.Errorf("report_no in notification = %q", sent.Data["report_no"])
	}
}

func TestCreateAction_RoleGate(t *testing.T) {
	e := newActionEnv()
	dept := e.dept
	staff := auth.Actor{ID: uuid.New(), Role: identity.RoleStaff, DepartmentID: &dept}

	_, err := e.svc.Create(context.Background(), staff, &CreateActionRequest{
		IncidentID: e.incident,
		Title:      "x",
		ActionType: TypeCorrective,
		AssigneeID: e.assignee,
		DueDate:    dueIn(7),
	})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestCreateAction_Validation(t *testing.T) {
	e := newActionEnv()

	_, err := e.svc.Create(context.Background(), quality(), &CreateActionRequest{})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	for _, field := range []string{"incident_id", "title", "action_type", "assignee_id", "due_date"} {
		if _, ok := ve.Fields[field]; !ok {
			t.Errorf("missing validation message for %q", field)
		}
	}
}

func TestCreateAction_PastDueDate(t *testing.T) {
	e := newActionEnv()

	_, err := e.svc.Create(context.Background(), quality(), &CreateActionRequest{
		IncidentID: e.incident,
		Title:      "Review bed alarm configuration",
		ActionType: TypeCorrective,
		AssigneeID: e.assignee,
		DueDate:    dueIn(-1),
	})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, ok := ve.Fields["due_date"]; !ok {
		t.Errorf("fields = %v, want due_date message", ve.Fields)
	}
}

func TestCreateAction_UnknownIncident(t *testing.T) {
	e := newActionEnv()

	_, err := e.svc.Create(context.Background(), quality(), &CreateActionRequest{
		IncidentID: uuid.New(),
		Title:      "x",
		ActionType: TypePreventive,
		AssigneeID: e.assignee,
		DueDate:    dueIn(7),
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestCreateAction_UnknownAssignee(t *testing.T) {
	e := newActionEnv()

	_, err := e.svc.Create(context.Background(), quality(), &CreateActionRequest{
		IncidentID: e.incident,
		Title:      "x",
		ActionType: TypePreventive,
		AssigneeID: uuid.New(),
		DueDate:    dueIn(7),
	})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, ok := ve.Fields["assignee_id"]; !ok {
		t.Errorf("fields = %v, want assignee_id message", ve.Fields)
	}
}

func TestAssigneeStatusWalk(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)
	ctx := context.Background()
	dept := e.dept
	assignee := auth.Actor{ID: e.assignee, Role: identity.RoleStaff, DepartmentID: &dept}

	inProgress := StatusInProgress
	got, err := e.svc.Update(ctx, assignee, a.ID, &UpdateActionRequest{Status: &inProgress})
	if err != nil {
		t.Fatalf("open -> in_progress: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}

	completed := StatusCompleted
	got, err = e.svc.Update(ctx, assignee, a.ID, &UpdateActionRequest{Status: &completed})
	if err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	// Completed is the end of the assignee's walk.
	if _, err := e.svc.Update(ctx, assignee, a.ID, &UpdateActionRequest{Status: &inProgress}); !errors.Is(err, apperr.ErrState) {
		t.Errorf("completed -> in_progress: err = %v, want state error", err)
	}
}

func TestAssigneeStatusWalk_NoSkipping(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)
	dept := e.dept
	assignee := auth.Actor{ID: e.assignee, Role: identity.RoleStaff, DepartmentID: &dept}

	completed := StatusCompleted
	if _, err := e.svc.Update(context.Background(), assignee, a.ID, &UpdateActionRequest{Status: &completed}); !errors.Is(err, apperr.ErrState) {
		t.Errorf("open -> completed: err = %v, want state error", err)
	}
}

func TestAssigneeCannotEditFields(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)
	dept := e.dept
	assignee := auth.Actor{ID: e.assignee, Role: identity.RoleStaff, DepartmentID: &dept}

	title := "Rewritten title"
	if _, err := e.svc.Update(context.Background(), assignee, a.ID, &UpdateActionRequest{Title: &title}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("assignee title edit: err = %v, want forbidden", err)
	}

	// A status-less assignee update is an empty request.
	if _, err := e.svc.Update(context.Background(), assignee, a.ID, &UpdateActionRequest{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty assignee update: err = %v, want validation error", err)
	}
}

func TestUpdate_UnrelatedUserForbidden(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)
	dept := e.dept
	other := auth.Actor{ID: uuid.New(), Role: identity.RoleStaff, DepartmentID: &dept}

	inProgress := StatusInProgress
	if _, err := e.svc.Update(context.Background(), other, a.ID, &UpdateActionRequest{Status: &inProgress}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestQualityEdit(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)
	ctx := context.Background()

	newAssignee := uuid.New()
	e.contacts.contacts[newAssignee] = Contact{Name: "Park Minseo", Email: "minseo@hospital.test"}
	title := "Retrain ward staff on bed alarms"
	due := dueIn(14)

	got, err := e.svc.Update(ctx, quality(), a.ID, &UpdateActionRequest{
		Title:      &title,
		AssigneeID: &newAssignee,
		DueDate:    &due,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != title {
		t.Errorf("title = %q", got.Title)
	}
	if got.AssigneeID != newAssignee {
		t.Errorf("assignee = %s, want %s", got.AssigneeID, newAssignee)
	}

	// Reassignment re-sends the assignment notification.
	if len(e.notifier.sent) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(e.notifier.sent))
	}
	if e.notifier.sent[1].Recipient != "minseo@hospital.test" {
		t.Errorf("reassignment recipient = %q", e.notifier.sent[1].Recipient)
	}
}

func TestQualityEdit_TerminalStatusesUseEndpoints(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)

	verified := StatusVerified
	_, err := e.svc.Update(context.Background(), quality(), a.ID, &UpdateActionRequest{Status: &verified})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, ok := ve.Fields["status"]; !ok {
		t.Errorf("fields = %v, want status message", ve.Fields)
	}
}

func TestVerify(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)
	ctx := context.Background()
	qm := quality()

	// Not yet completed.
	if _, err := e.svc.Verify(ctx, qm, a.ID, ""); !errors.Is(err, apperr.ErrState) {
		t.Errorf("verifying an open action: err = %v, want state error", err)
	}

	completed := StatusCompleted
	if _, err := e.svc.Update(ctx, qm, a.ID, &UpdateActionRequest{Status: &completed}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	dept := e.dept
	staff := auth.Actor{ID: e.assignee, Role: identity.RoleStaff, DepartmentID: &dept}
	if _, err := e.svc.Verify(ctx, staff, a.ID, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("assignee verify: err = %v, want forbidden", err)
	}

	got, err := e.svc.Verify(ctx, qm, a.ID, "inspected on the ward")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Status != StatusVerified {
		t.Errorf("status = %q, want verified", got.Status)
	}
	if got.VerifiedBy == nil || *got.VerifiedBy != qm.ID {
		t.Errorf("verified_by = %v, want %s", got.VerifiedBy, qm.ID)
	}
	if got.VerifiedAt == nil {
		t.Error("verified_at not stamped")
	}
	if got.VerificationNote == nil || *got.VerificationNote != "inspected on the ward" {
		t.Errorf("verification_note = %v", got.VerificationNote)
	}
}

func TestCancel(t *testing.T) {
	e := newActionEnv()
	a := e.createAction(t)
	ctx := context.Background()
	qm := quality()

	got, err := e.svc.Cancel(ctx, qm, a.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}

	// Terminal states stay terminal.
	if _, err := e.svc.Cancel(ctx, qm, a.ID); !errors.Is(err, apperr.ErrState) {
		t.Errorf("cancelling twice: err = %v, want state error", err)
	}
}

func TestList_OverdueFilter(t *testing.T) {
	e := newActionEnv()
	ctx := context.Background()
	qm := quality()

	e.createAction(t) // due next week

	// An overdue one: created valid, then pushed into the past directly.
	late := e.createAction(t)
	e.repo.actions[late.ID].DueDate = time.Now().UTC().AddDate(0, 0, -3)

	// Due today is not overdue.
	dueToday := e.createAction(t)
	e.repo.actions[dueToday.ID].DueDate = time.Now().UTC().Truncate(24 * time.Hour)

	got, total, err := e.svc.List(ctx, ListFilter{Overdue: true, Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(got) != 1 {
		t.Fatalf("overdue rows = %d/%d, want 1", len(got), total)
	}
	if got[0].ID != late.ID {
		t.Errorf("overdue row = %s, want %s", got[0].ID, late.ID)
	}
	if !got[0].Overdue {
		t.Error("overdue flag not set on listing")
	}

	// A completed action past its due date is not overdue.
	inProgress := StatusInProgress
	completed := StatusCompleted
	if _, err := e.svc.Update(ctx, qm, late.ID, &UpdateActionRequest{Status: &inProgress}); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	if _, err := e.svc.Update(ctx, qm, late.ID, &UpdateActionRequest{Status: &completed}); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	_, total, err = e.svc.List(ctx, ListFilter{Overdue: true, Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 {
		t.Errorf("overdue rows after completion = %d, want 0", total)
	}
}
