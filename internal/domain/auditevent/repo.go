package auditevent

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, ev *AuditEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error)
	List(ctx context.Context, f ListFilter) ([]*AuditEvent, int, error)
}
