package action

import (
	"time"

	"github.com/google/uuid"
)

// Action types.
const (
	TypeCorrective = "corrective"
	TypePreventive = "preventive"
)

// Action statuses. The assignee walks open -> in_progress -> completed;
// quality verifies completed work. Verified and cancelled are terminal.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusVerified   = "verified"
	StatusCancelled  = "cancelled"
)

func ValidType(t string) bool {
	return t == TypeCorrective || t == TypePreventive
}

func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusVerified, StatusCancelled:
		return true
	}
	return false
}

// Action maps to the action table: one corrective or preventive measure
// raised from an incident. DepartmentID is copied from the incident at
// creation so listings can filter without a join.
type Action struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	IncidentID       uuid.UUID  `db:"incident_id" json:"incident_id"`
	Title            string     `db:"title" json:"title"`
	Description      *string    `db:"description" json:"description,omitempty"`
	ActionType       string     `db:"action_type" json:"action_type"`
	Status           string     `db:"status" json:"status"`
	AssigneeID       uuid.UUID  `db:"assignee_id" json:"assignee_id"`
	DepartmentID     *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	DueDate          time.Time  `db:"due_date" json:"due_date"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	VerifiedBy       *uuid.UUID `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt       *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerificationNote *string    `db:"verification_note" json:"verification_note,omitempty"`
	CreatedBy        uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	// Overdue is derived at read time, never stored.
	Overdue bool `db:"-" json:"overdue"`
}

// IsOverdue reports whether the action is still open past its due date.
// Due "today" is not yet overdue.
func (a *Action) IsOverdue(now time.Time) bool {
	if a.Status != StatusOpen && a.Status != StatusInProgress {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return a.DueDate.Before(today)
}

// RefreshOverdue recomputes the derived Overdue flag.
func (a *Action) RefreshOverdue(now time.Time) {
	a.Overdue = a.IsOverdue(now)
}
