package incident

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Visibility restricts a listing to reports the caller may see: their own
// plus, when they belong to one, their department's.
type Visibility struct {
	ReporterID   uuid.UUID
	DepartmentID *uuid.UUID
}

// ListFilter collects the query parameters of the incident listing.
type ListFilter struct {
	Type         string
	Status       string
	DepartmentID *uuid.UUID
	HarmLevel    string
	From         *time.Time
	To           *time.Time
	Query        string
	VisibleTo    *Visibility
	Limit        int
	Offset       int
}

type IncidentRepository interface {
	// NextReportNo allocates the next report number for the year,
	// formatted "PSR-YYYY-NNNNN".
	NextReportNo(ctx context.Context, year int) (string, error)
	Create(ctx context.Context, inc *Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*Incident, error)
	Update(ctx context.Context, inc *Incident) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Incident, int, error)

	SaveFallDetail(ctx context.Context, d *FallDetail) error
	SaveMedicationDetail(ctx context.Context, d *MedicationDetail) error
	SaveInfectionDetail(ctx context.Context, d *InfectionDetail) error
	SavePressureUlcerDetail(ctx context.Context, d *PressureUlcerDetail) error
	GetFallDetail(ctx context.Context, incidentID uuid.UUID) (*FallDetail, error)
	GetMedicationDetail(ctx context.Context, incidentID uuid.UUID) (*MedicationDetail, error)
	GetInfectionDetail(ctx context.Context, incidentID uuid.UUID) (*InfectionDetail, error)
	GetPressureUlcerDetail(ctx context.Context, incidentID uuid.UUID) (*PressureUlcerDetail, error)
	// DeleteDetails removes whatever detail rows exist for the incident.
	// Used when an update changes the incident type.
	DeleteDetails(ctx context.Context, incidentID uuid.UUID) error

	// DepartmentNames resolves department ids to display names for exports.
	DepartmentNames(ctx context.Context) (map[uuid.UUID]string, error)
}

type ApprovalRepository interface {
	Create(ctx context.Context, a *Approval) error
	// GetPending returns the open approval row at the given level.
	GetPending(ctx context.Context, incidentID uuid.UUID, level int) (*Approval, error)
	// Decide stamps status, decided_by, decided_at and comment on the row.
	Decide(ctx context.Context, a *Approval) error
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Approval, error)
	// ListPending returns pending approvals at the given levels, optionally
	// restricted to one department, joined with their incident summary.
	ListPending(ctx context.Context, levels []int, departmentID *uuid.UUID, limit, offset int) ([]*PendingApproval, int, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error)
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
