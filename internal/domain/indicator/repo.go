package indicator

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows GET /indicators. Query matches code and name
// case-insensitively.
type ListFilter struct {
	DepartmentID *uuid.UUID
	Frequency    string
	Active       *bool
	Query        string
	Limit        int
	Offset       int
}

type Repository interface {
	Create(ctx context.Context, cfg *Config) error
	GetByID(ctx context.Context, id uuid.UUID) (*Config, error)
	Update(ctx context.Context, cfg *Config) error
	List(ctx context.Context, f ListFilter) ([]*Config, int, error)

	// UpsertValue inserts the period or replaces its measurement, keyed
	// on (indicator_id, period).
	UpsertValue(ctx context.Context, v *Value) error

	// ListValues returns the series ordered by period ascending. Empty
	// from/to leave that end of the range unbounded.
	ListValues(ctx context.Context, indicatorID uuid.UUID, from, to string) ([]*Value, error)
}
