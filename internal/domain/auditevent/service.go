package auditevent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo/internal/platform/middleware"
	"github.com/vigilo/vigilo/pkg/apperr"
)

// phiResources are the collections whose reads are persisted: their rows
// carry identified patient data. Mutations are persisted for every resource.
var phiResources = map[string]bool{
	"incidents":   true,
	"attachments": true,
	"approvals":   true,
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Persistable reports whether an access of resource with the given action is
// written to the audit table. Reads of the trail itself are not recorded.
func Persistable(action, resource string) bool {
	if resource == "audit-events" {
		return false
	}
	if action != ActionRead {
		return true
	}
	return phiResources[resource]
}

// RecordAccess implements middleware.AuditRecorder. The middleware interface
// carries no context, and the audit row must be written even when the
// request's context is already done, so the insert runs under its own
// deadline.
func (s *Service) RecordAccess(entry middleware.AuditEntry) error {
	if !Persistable(entry.Action, entry.Resource) {
		return nil
	}

	ev := &AuditEvent{
		OccurredAt: entry.Timestamp,
		ActorRole:  entry.UserRole,
		Action:     entry.Action,
		Resource:   entry.Resource,
		Method:     entry.Method,
		Path:       entry.Path,
		StatusCode: entry.StatusCode,
		Outcome:    OutcomeFor(entry.StatusCode),
		RequestID:  entry.RequestID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}
	if id, err := uuid.Parse(entry.UserID); err == nil {
		ev.ActorID = &id
	}
	if id, err := uuid.Parse(entry.RecordID); err == nil {
		ev.RecordID = &id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.repo.Insert(ctx, ev)
}

// Get returns one audit event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the filtered trail, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*AuditEvent, int, error) {
	if f.Action != "" && !ValidAction(f.Action) {
		return nil, 0, apperr.Validationf("action", "action must be one of read, create, update, delete")
	}
	if f.Outcome != "" && !ValidOutcome(f.Outcome) {
		return nil, 0, apperr.Validationf("outcome", "outcome must be one of success, denied, failure, error")
	}
	events, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if events == nil {
		events = []*AuditEvent{}
	}
	return events, total, nil
}
