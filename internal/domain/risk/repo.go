package risk

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows GET /risks. Query matches risk_no, title and
// description case-insensitively.
type ListFilter struct {
	Category     string
	Level        string
	Status       string
	DepartmentID *uuid.UUID
	Query        string
	Limit        int
	Offset       int
}

// MatrixKey addresses one cell of the 5x5 matrix.
type MatrixKey struct {
	Probability int
	Severity    int
}

type Repository interface {
	NextRiskNo(ctx context.Context, year int) (string, error)
	Create(ctx context.Context, r *Risk) error
	GetByID(ctx context.Context, id uuid.UUID) (*Risk, error)
	Update(ctx context.Context, r *Risk) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Risk, int, error)

	CreateAssessment(ctx context.Context, a *Assessment) error
	ListAssessments(ctx context.Context, riskID uuid.UUID) ([]*Assessment, error)

	// MatrixCounts returns the number of live (open or mitigating) risks
	// per probability x severity cell. Cells without risks are absent.
	MatrixCounts(ctx context.Context) (map[MatrixKey]int, error)
}
