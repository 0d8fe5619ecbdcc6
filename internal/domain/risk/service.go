package risk

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/internal/platform/db"
	"github.com/vigilo/vigilo/pkg/apperr"
)

type Service struct {
	risks Repository
	pool  *pgxpool.Pool
}

func NewService(risks Repository, pool *pgxpool.Pool) *Service {
	return &Service{risks: risks, pool: pool}
}

func isQuality(a auth.Actor) bool {
	return a.Role == identity.RoleQuality || a.Role == identity.RoleAdmin
}

type CreateRiskRequest struct {
	Title         string     `json:"title"`
	Description   *string    `json:"description,omitempty"`
	Category      string     `json:"category"`
	DepartmentID  *uuid.UUID `json:"department_id,omitempty"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	Probability   int        `json:"probability"`
	Severity      int        `json:"severity"`
	Detectability *int       `json:"detectability,omitempty"`
	IdentifiedAt  *string    `json:"identified_at,omitempty"`
	ReviewDue     *string    `json:"review_due,omitempty"`
}

// Create registers a risk. Score, level and rpn are always computed here;
// client-supplied values are never accepted. The initial scoring is also
// written as the baseline assessment row.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req *CreateRiskRequest) (*Risk, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("creating risks requires the quality role")
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = "title is required"
	}
	if !ValidCategory(req.Category) {
		fields["category"] = "category must be one of clinical, medication, infection, environment, equipment, organizational"
	}
	if req.OwnerID == uuid.Nil {
		fields["owner_id"] = "owner_id is required"
	}
	validateScoring(fields, req.Probability, req.Severity, req.Detectability)

	identifiedAt := time.Now().UTC()
	if req.IdentifiedAt != nil {
		t, err := time.Parse("2006-01-02", *req.IdentifiedAt)
		if err != nil {
			fields["identified_at"] = "identified_at must be a date in YYYY-MM-DD format"
		} else {
			identifiedAt = t
		}
	}
	var reviewDue *time.Time
	if req.ReviewDue != nil {
		t, err := time.Parse("2006-01-02", *req.ReviewDue)
		if err != nil {
			fields["review_due"] = "review_due must be a date in YYYY-MM-DD format"
		} else {
			reviewDue = &t
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	score := req.Probability * req.Severity
	rk := &Risk{
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      req.Category,
		DepartmentID:  req.DepartmentID,
		OwnerID:       req.OwnerID,
		Status:        StatusOpen,
		Probability:   req.Probability,
		Severity:      req.Severity,
		Score:         score,
		Level:         ScoreLevel(score),
		Detectability: req.Detectability,
		RPN:           ComputeRPN(req.Probability, req.Severity, req.Detectability),
		IdentifiedAt:  identifiedAt,
		ReviewDue:     reviewDue,
		CreatedBy:     actor.ID,
	}

	err := db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		no, err := s.risks.NextRiskNo(ctx, time.Now().UTC().Year())
		if err != nil {
			return err
		}
		rk.RiskNo = no
		if err := s.risks.Create(ctx, rk); err != nil {
			return err
		}
		return s.risks.CreateAssessment(ctx, baselineAssessment(rk, actor.ID))
	})
	if err != nil {
		return nil, err
	}
	return s.risks.GetByID(ctx, rk.ID)
}

// baselineAssessment mirrors the risk's initial scoring into the history.
func baselineAssessment(rk *Risk, by uuid.UUID) *Assessment {
	return &Assessment{
		RiskID:        rk.ID,
		Probability:   rk.Probability,
		Severity:      rk.Severity,
		Score:         rk.Score,
		Level:         rk.Level,
		Detectability: rk.Detectability,
		RPN:           rk.RPN,
		AssessedBy:    by,
		AssessedAt:    time.Now().UTC(),
	}
}

func validateScoring(fields map[string]string, probability, severity int, detectability *int) {
	if !ValidRating(probability) {
		fields["probability"] = "probability must be between 1 and 5"
	}
	if !ValidRating(severity) {
		fields["severity"] = "severity must be between 1 and 5"
	}
	if detectability != nil && !ValidRating(*detectability) {
		fields["detectability"] = "detectability must be between 1 and 5"
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Risk, error) {
	return s.risks.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Risk, int, error) {
	return s.risks.List(ctx, f)
}

// UpdateRiskRequest replaces a risk's descriptive fields. Scoring is not
// editable here: probability/severity/score/level/rpn change only through
// a new assessment.
type UpdateRiskRequest struct {
	Title        string     `json:"title"`
	Description  *string    `json:"description,omitempty"`
	Category     string     `json:"category"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	Status       string     `json:"status"`
	ReviewDue    *string    `json:"review_due,omitempty"`
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, req *UpdateRiskRequest) (*Risk, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("updating risks requires the quality role")
	}
	rk, err := s.risks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = "title is required"
	}
	if !ValidCategory(req.Category) {
		fields["category"] = "category must be one of clinical, medication, infection, environment, equipment, organizational"
	}
	if req.OwnerID == uuid.Nil {
		fields["owner_id"] = "owner_id is required"
	}
	if !ValidStatus(req.Status) {
		fields["status"] = "status must be one of open, mitigating, accepted, closed"
	}
	var reviewDue *time.Time
	if req.ReviewDue != nil {
		t, err := time.Parse("2006-01-02", *req.ReviewDue)
		if err != nil {
			fields["review_due"] = "review_due must be a date in YYYY-MM-DD format"
		} else {
			reviewDue = &t
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	rk.Title = strings.TrimSpace(req.Title)
	rk.Description = req.Description
	rk.Category = req.Category
	rk.DepartmentID = req.DepartmentID
	rk.OwnerID = req.OwnerID
	rk.Status = req.Status
	rk.ReviewDue = reviewDue

	if err := s.risks.Update(ctx, rk); err != nil {
		return nil, err
	}
	return s.risks.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if actor.Role != identity.RoleAdmin {
		return apperr.Forbiddenf("deleting risks requires the admin role")
	}
	return s.risks.Delete(ctx, id)
}

type AssessRequest struct {
	Probability   int     `json:"probability"`
	Severity      int     `json:"severity"`
	Detectability *int    `json:"detectability,omitempty"`
	Mitigation    *string `json:"mitigation,omitempty"`
	Note          *string `json:"note,omitempty"`
}

// Assess records a reassessment and moves the risk's current scoring to it
// in the same transaction.
func (s *Service) Assess(ctx context.Context, actor auth.Actor, id uuid.UUID, req *AssessRequest) (*Assessment, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("assessing risks requires the quality role")
	}

	fields := map[string]string{}
	validateScoring(fields, req.Probability, req.Severity, req.Detectability)
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	score := req.Probability * req.Severity
	assessment := &Assessment{
		RiskID:        id,
		Probability:   req.Probability,
		Severity:      req.Severity,
		Score:         score,
		Level:         ScoreLevel(score),
		Detectability: req.Detectability,
		RPN:           ComputeRPN(req.Probability, req.Severity, req.Detectability),
		Mitigation:    req.Mitigation,
		Note:          req.Note,
		AssessedBy:    actor.ID,
		AssessedAt:    time.Now().UTC(),
	}

	err := db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		rk, err := s.risks.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if rk.Status == StatusClosed {
			return apperr.Statef("risk %s is closed", rk.RiskNo)
		}
		if err := s.risks.CreateAssessment(ctx, assessment); err != nil {
			return err
		}
		rk.Probability = assessment.Probability
		rk.Severity = assessment.Severity
		rk.Score = assessment.Score
		rk.Level = assessment.Level
		rk.Detectability = assessment.Detectability
		rk.RPN = assessment.RPN
		return s.risks.Update(ctx, rk)
	})
	if err != nil {
		return nil, err
	}
	return assessment, nil
}

// Assessments returns the scoring history, newest first.
func (s *Service) Assessments(ctx context.Context, id uuid.UUID) ([]*Assessment, error) {
	if _, err := s.risks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.risks.ListAssessments(ctx, id)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*Assessment{}
	}
	return history, nil
}

// Matrix returns all 25 probability x severity cells with the count of
// live risks in each.
func (s *Service) Matrix(ctx context.Context) ([]MatrixCell, error) {
	counts, err := s.risks.MatrixCounts(ctx)
	if err != nil {
		return nil, err
	}
	cells := make([]MatrixCell, 0, 25)
	for p := 1; p <= 5; p++ {
		for sev := 1; sev <= 5; sev++ {
			cells = append(cells, MatrixCell{
				Probability: p,
				Severity:    sev,
				Level:       ScoreLevel(p * sev),
				Count:       counts[MatrixKey{Probability: p, Severity: sev}],
			})
		}
	}
	return cells, nil
}
