package risk

import (
	"time"

	"github.com/google/uuid"
)

// Risk categories.
const (
	CategoryClinical       = "clinical"
	CategoryMedication     = "medication"
	CategoryInfection      = "infection"
	CategoryEnvironment    = "environment"
	CategoryEquipment      = "equipment"
	CategoryOrganizational = "organizational"
)

// Risk statuses. open and mitigating risks are live; accepted risks are
// consciously tolerated residual risks; closed risks are retired.
const (
	StatusOpen       = "open"
	StatusMitigating = "mitigating"
	StatusAccepted   = "accepted"
	StatusClosed     = "closed"
)

// Risk levels derived from the probability x severity score.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

func ValidCategory(c string) bool {
	switch c {
	case CategoryClinical, CategoryMedication, CategoryInfection,
		CategoryEnvironment, CategoryEquipment, CategoryOrganizational:
		return true
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusMitigating, StatusAccepted, StatusClosed:
		return true
	}
	return false
}

// ValidRating reports whether v is a 1-5 matrix rating.
func ValidRating(v int) bool {
	return v >= 1 && v <= 5
}

// ScoreLevel maps a probability x severity product to a risk level.
// Boundaries: 4 -> low, 9 -> medium, 16 -> high, above -> critical.
func ScoreLevel(score int) string {
	switch {
	case score <= 4:
		return LevelLow
	case score <= 9:
		return LevelMedium
	case score <= 16:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// ComputeRPN returns the FMEA Risk Priority Number
// (probability x severity x detectability), or nil when detectability
// was not rated.
func ComputeRPN(probability, severity int, detectability *int) *int {
	if detectability == nil {
		return nil
	}
	rpn := probability * severity * *detectability
	return &rpn
}

// Risk maps to the risk table: one register entry. Its current
// probability/severity/score/level/rpn always mirror the most recent
// assessment row.
type Risk struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	RiskNo        string     `db:"risk_no" json:"risk_no"`
	Title         string     `db:"title" json:"title"`
	Description   *string    `db:"description" json:"description,omitempty"`
	Category      string     `db:"category" json:"category"`
	DepartmentID  *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	OwnerID       uuid.UUID  `db:"owner_id" json:"owner_id"`
	Status        string     `db:"status" json:"status"`
	Probability   int        `db:"probability" json:"probability"`
	Severity      int        `db:"severity" json:"severity"`
	Score         int        `db:"score" json:"score"`
	Level         string     `db:"level" json:"level"`
	Detectability *int       `db:"detectability" json:"detectability,omitempty"`
	RPN           *int       `db:"rpn" json:"rpn,omitempty"`
	IdentifiedAt  time.Time  `db:"identified_at" json:"identified_at"`
	ReviewDue     *time.Time `db:"review_due" json:"review_due,omitempty"`
	CreatedBy     uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Assessment maps to the risk_assessment table: the scoring history of a
// risk, including the baseline written at creation.
type Assessment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RiskID        uuid.UUID `db:"risk_id" json:"risk_id"`
	Probability   int       `db:"probability" json:"probability"`
	Severity      int       `db:"severity" json:"severity"`
	Score         int       `db:"score" json:"score"`
	Level         string    `db:"level" json:"level"`
	Detectability *int      `db:"detectability" json:"detectability,omitempty"`
	RPN           *int      `db:"rpn" json:"rpn,omitempty"`
	Mitigation    *string   `db:"mitigation" json:"mitigation,omitempty"`
	Note          *string   `db:"note" json:"note,omitempty"`
	AssessedBy    uuid.UUID `db:"assessed_by" json:"assessed_by"`
	AssessedAt    time.Time `db:"assessed_at" json:"assessed_at"`
}

// MatrixCell is one probability x severity bucket of the 5x5 risk matrix.
type MatrixCell struct {
	Probability int    `json:"probability"`
	Severity    int    `json:"severity"`
	Level       string `json:"level"`
	Count       int    `json:"count"`
}
