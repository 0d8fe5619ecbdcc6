package action

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/internal/platform/notification"
	"github.com/vigilo/vigilo/pkg/apperr"
)

// Notifier is the slice of the notification manager the service needs.
// Send failures are logged and dropped; they never fail a workflow write.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

type Service struct {
	actions  Repository
	contacts ContactResolver
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(actions Repository, contacts ContactResolver, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{actions: actions, contacts: contacts, notifier: notifier, logger: logger}
}

func isQuality(a auth.Actor) bool {
	return a.Role == identity.RoleQuality || a.Role == identity.RoleAdmin
}

type CreateActionRequest struct {
	IncidentID  uuid.UUID `json:"incident_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	ActionType  string    `json:"action_type"`
	AssigneeID  uuid.UUID `json:"assignee_id"`
	DueDate     string    `json:"due_date"`
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, req *CreateActionRequest) (*Action, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("creating actions requires the quality role")
	}

	fields := map[string]string{}
	if req.IncidentID == uuid.Nil {
		fields["incident_id"] = "incident_id is required"
	}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = "title is required"
	}
	if !ValidType(req.ActionType) {
		fields["action_type"] = "action_type must be corrective or preventive"
	}
	if req.AssigneeID == uuid.Nil {
		fields["assignee_id"] = "assignee_id is required"
	}
	var due time.Time
	if req.DueDate == "" {
		fields["due_date"] = "due_date is required"
	} else {
		var err error
		due, err = time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			fields["due_date"] = "due_date must be formatted YYYY-MM-DD"
		} else if due.Before(today(time.Now().UTC())) {
			fields["due_date"] = "due_date must not be in the past"
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	reportNo, departmentID, err := s.actions.IncidentRef(ctx, req.IncidentID)
	if err != nil {
		return nil, err
	}

	assignee, err := s.contacts.Contact(ctx, req.AssigneeID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validationf("assignee_id", "assignee %s does not exist", req.AssigneeID)
		}
		return nil, err
	}

	a := &Action{
		IncidentID:   req.IncidentID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		ActionType:   req.ActionType,
		Status:       StatusOpen,
		AssigneeID:   req.AssigneeID,
		DepartmentID: &departmentID,
		DueDate:      due,
		CreatedBy:    actor.ID,
	}
	if err := s.actions.Create(ctx, a); err != nil {
		return nil, err
	}

	s.notifyAssignee(ctx, assignee, a, reportNo)

	return s.Get(ctx, a.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Action, error) {
	a, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.RefreshOverdue(time.Now().UTC())
	return a, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Action, int, error) {
	actions, total, err := s.actions.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now().UTC()
	for _, a := range actions {
		a.RefreshOverdue(now)
	}
	return actions, total, nil
}

type UpdateActionRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	ActionType  *string    `json:"action_type,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	DueDate     *string    `json:"due_date,omitempty"`
	Status      *string    `json:"status,omitempty"`
}

// Update applies an edit. Quality and admin may change any field; the
// assignee may only walk the status forward (open -> in_progress ->
// completed).
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, req *UpdateActionRequest) (*Action, error) {
	a, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previousAssignee := a.AssigneeID

	switch {
	case isQuality(actor):
		if err := s.applyEdit(ctx, a, req); err != nil {
			return nil, err
		}
	case actor.ID == a.AssigneeID:
		if req.Title != nil || req.Description != nil || req.ActionType != nil ||
			req.AssigneeID != nil || req.DueDate != nil {
			return nil, apperr.Forbiddenf("assignees may only update the action status")
		}
		if req.Status == nil {
			return nil, apperr.Validationf("status", "status is required")
		}
		if err := advanceStatus(a, *req.Status); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Forbiddenf("not allowed to edit action %s", id)
	}

	if err := s.actions.Update(ctx, a); err != nil {
		return nil, err
	}

	if a.AssigneeID != previousAssignee {
		s.notifyReassigned(ctx, a)
	}

	return s.Get(ctx, id)
}

func (s *Service) applyEdit(ctx context.Context, a *Action, req *UpdateActionRequest) error {
	fields := map[string]string{}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			fields["title"] = "title cannot be empty"
		} else {
			a.Title = strings.TrimSpace(*req.Title)
		}
	}
	if req.Description != nil {
		a.Description = req.Description
	}
	if req.ActionType != nil {
		if !ValidType(*req.ActionType) {
			fields["action_type"] = "action_type must be corrective or preventive"
		} else {
			a.ActionType = *req.ActionType
		}
	}
	if req.AssigneeID != nil {
		if _, err := s.contacts.Contact(ctx, *req.AssigneeID); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			fields["assignee_id"] = "assignee does not exist"
		} else {
			a.AssigneeID = *req.AssigneeID
		}
	}
	if req.DueDate != nil {
		due, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			fields["due_date"] = "due_date must be formatted YYYY-MM-DD"
		} else {
			a.DueDate = due
		}
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusOpen, StatusInProgress:
			a.Status = *req.Status
			a.CompletedAt = nil
		case StatusCompleted:
			if a.CompletedAt == nil {
				now := time.Now().UTC()
				a.CompletedAt = &now
			}
			a.Status = StatusCompleted
		case StatusVerified, StatusCancelled:
			fields["status"] = "use the verify and cancel endpoints"
		default:
			fields["status"] = "unknown status"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func advanceStatus(a *Action, to string) error {
	switch {
	case a.Status == StatusOpen && to == StatusInProgress:
		a.Status = StatusInProgress
	case a.Status == StatusInProgress && to == StatusCompleted:
		now := time.Now().UTC()
		a.Status = StatusCompleted
		a.CompletedAt = &now
	default:
		return apperr.Statef("action cannot move from %s to %s", a.Status, to)
	}
	return nil
}

func (s *Service) Verify(ctx context.Context, actor auth.Actor, id uuid.UUID, note string) (*Action, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("verifying actions requires the quality role")
	}
	a, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusCompleted {
		return nil, apperr.Statef("action %s cannot be verified from status %s", id, a.Status)
	}
	now := time.Now().UTC()
	a.Status = StatusVerified
	a.VerifiedBy = &actor.ID
	a.VerifiedAt = &now
	if n := strings.TrimSpace(note); n != "" {
		a.VerificationNote = &n
	}
	if err := s.actions.Update(ctx, a); err != nil {
		return nil, err
	}
	a.RefreshOverdue(now)
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Action, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("cancelling actions requires the quality role")
	}
	a, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusVerified || a.Status == StatusCancelled {
		return nil, apperr.Statef("action %s is already %s", id, a.Status)
	}
	a.Status = StatusCancelled
	if err := s.actions.Update(ctx, a); err != nil {
		return nil, err
	}
	a.RefreshOverdue(time.Now().UTC())
	return a, nil
}

func (s *Service) notifyAssignee(ctx context.Context, to *Contact, a *Action, reportNo string) {
	if s.notifier == nil || to == nil {
		return
	}
	data := map[string]string{
		"title":     a.Title,
		"report_no": reportNo,
		"due_date":  a.DueDate.Format("2006-01-02"),
	}
	if _, err := s.notifier.SendFromTemplate(ctx, notification.TemplateActionAssigned, data, to.Email); err != nil {
		s.logger.Warn().Err(err).Str("action_id", a.ID.String()).Msg("action assignment notification failed")
	}
}

func (s *Service) notifyReassigned(ctx context.Context, a *Action) {
	if s.notifier == nil {
		return
	}
	to, err := s.contacts.Contact(ctx, a.AssigneeID)
	if err != nil {
		s.logger.Warn().Err(err).Str("action_id", a.ID.String()).Msg("resolving new assignee failed")
		return
	}
	reportNo, _, err := s.actions.IncidentRef(ctx, a.IncidentID)
	if err != nil {
		s.logger.Warn().Err(err).Str("action_id", a.ID.String()).Msg("resolving incident for notification failed")
		return
	}
	s.notifyAssignee(ctx, to, a, reportNo)
}

func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
