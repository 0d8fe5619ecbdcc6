package auditevent

import (
	"time"

	"github.com/google/uuid"
)

// Audit outcomes, derived from the response status.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Audit actions, as the audit middleware maps them from HTTP methods.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

func ValidAction(a string) bool {
	switch a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

func ValidOutcome(o string) bool {
	switch o {
	case OutcomeSuccess, OutcomeDenied, OutcomeFailure, OutcomeError:
		return true
	}
	return false
}

// OutcomeFor classifies a response status: 2xx/3xx succeeded, 401/403 were
// denied, other 4xx were rejected input, 5xx failed server-side.
func OutcomeFor(status int) string {
	switch {
	case status < 400:
		return OutcomeSuccess
	case status == 401 || status == 403:
		return OutcomeDenied
	case status < 500:
		return OutcomeFailure
	default:
		return OutcomeError
	}
}

// AuditEvent is one persisted access record. Incident reports carry
// identified patient data, so reads of them are recorded alongside every
// mutating request. ActorID is nil for unauthenticated or development
// traffic that carries no parseable user id.
type AuditEvent struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OccurredAt time.Time  `db:"occurred_at" json:"occurred_at"`
	ActorID    *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole  string     `db:"actor_role" json:"actor_role"`
	Action     string     `db:"action" json:"action"`
	Resource   string     `db:"resource" json:"resource"`
	RecordID   *uuid.UUID `db:"record_id" json:"record_id,omitempty"`
	Method     string     `db:"method" json:"method"`
	Path       string     `db:"path" json:"path"`
	StatusCode int        `db:"status_code" json:"status_code"`
	Outcome    string     `db:"outcome" json:"outcome"`
	RequestID  string     `db:"request_id" json:"request_id"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	UserAgent  string     `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// ListFilter collects the query parameters of the audit listing.
type ListFilter struct {
	Action   string
	Resource string
	Outcome  string
	ActorID  *uuid.UUID
	RecordID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
