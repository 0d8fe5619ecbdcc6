package action

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter collects the query parameters of the action listing. Overdue
// restricts to open work past its due date.
type ListFilter struct {
	IncidentID   *uuid.UUID
	Status       string
	AssigneeID   *uuid.UUID
	DepartmentID *uuid.UUID
	Overdue      bool
	Limit        int
	Offset       int
}

type Repository interface {
	Create(ctx context.Context, a *Action) error
	GetByID(ctx context.Context, id uuid.UUID) (*Action, error)
	Update(ctx context.Context, a *Action) error
	List(ctx context.Context, f ListFilter) ([]*Action, int, error)
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Action, error)

	// IncidentRef resolves the parent incident's report number and
	// department for creation checks and notifications.
	IncidentRef(ctx context.Context, incidentID uuid.UUID) (reportNo string, departmentID uuid.UUID, err error)
}

// Contact is a resolvable notification recipient.
type Contact struct {
	Name  string
	Email string
}

// ContactResolver looks up users for assignee checks and notifications.
type ContactResolver interface {
	Contact(ctx context.Context, id uuid.UUID) (*Contact, error)
}
