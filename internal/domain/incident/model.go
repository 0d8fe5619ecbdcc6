package incident

import (
	"time"

	"github.com/google/uuid"
)

// Incident types.
const (
	TypeFall          = "fall"
	TypeMedication    = "medication"
	TypeInfection     = "infection"
	TypePressureUlcer = "pressure_ulcer"
	TypeOther         = "other"
)

// Incident statuses. A report moves draft -> submitted -> approved -> closed;
// a rejection at any approval level returns it to rejected, from where the
// reporter may revise and resubmit.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusClosed    = "closed"
)

// Harm levels.
const (
	HarmNone     = "none"
	HarmMild     = "mild"
	HarmModerate = "moderate"
	HarmSevere   = "severe"
	HarmDeath    = "death"
)

// Approval row statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// FinalApprovalLevel is the last step of the approval chain.
const FinalApprovalLevel = 3

func ValidType(t string) bool {
	switch t {
	case TypeFall, TypeMedication, TypeInfection, TypePressureUlcer, TypeOther:
		return true
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusClosed:
		return true
	}
	return false
}

func ValidHarmLevel(h string) bool {
	switch h {
	case HarmNone, HarmMild, HarmModerate, HarmSevere, HarmDeath:
		return true
	}
	return false
}

func ValidFallType(t string) bool {
	switch t {
	case "from_bed", "from_chair", "while_walking", "in_bathroom", "other":
		return true
	}
	return false
}

func ValidMedicationErrorType(t string) bool {
	switch t {
	case "wrong_drug", "wrong_dose", "wrong_route", "wrong_time",
		"wrong_patient", "omission", "other":
		return true
	}
	return false
}

func ValidMedicationStage(s string) bool {
	switch s {
	case "prescribing", "transcribing", "dispensing", "administering", "monitoring":
		return true
	}
	return false
}

// ValidNCCMERPCategory reports whether c is a valid NCC MERP index category
// (A = circumstances with capacity to cause error .. I = death).
func ValidNCCMERPCategory(c string) bool {
	return len(c) == 1 && c[0] >= 'A' && c[0] <= 'I'
}

func ValidInfectionType(t string) bool {
	switch t {
	case "cauti", "clabsi", "ssi", "vap", "other":
		return true
	}
	return false
}

func ValidUlcerStage(s string) bool {
	switch s {
	case "1", "2", "3", "4", "unstageable", "deep_tissue":
		return true
	}
	return false
}

// Incident maps to the incident table: the Patient Safety Report envelope.
type Incident struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ReportNo        string     `db:"report_no" json:"report_no"`
	Type            string     `db:"incident_type" json:"type"`
	Status          string     `db:"status" json:"status"`
	EventDate       time.Time  `db:"event_date" json:"event_date"`
	EventTime       *string    `db:"event_time" json:"event_time,omitempty"`
	DepartmentID    uuid.UUID  `db:"department_id" json:"department_id"`
	Location        string     `db:"location" json:"location"`
	PatientName     string     `db:"patient_name" json:"patient_name"`
	PatientMRN      string     `db:"patient_mrn" json:"patient_mrn"`
	PatientAge      *int       `db:"patient_age" json:"patient_age,omitempty"`
	PatientSex      *string    `db:"patient_sex" json:"patient_sex,omitempty"`
	PhysicianID     *uuid.UUID `db:"physician_id" json:"physician_id,omitempty"`
	Description     string     `db:"description" json:"description"`
	ImmediateAction *string    `db:"immediate_action" json:"immediate_action,omitempty"`
	HarmLevel       string     `db:"harm_level" json:"harm_level"`
	ReporterID      uuid.UUID  `db:"reporter_id" json:"reporter_id"`
	Anonymous       bool       `db:"anonymous" json:"anonymous"`
	CurrentLevel    int        `db:"current_level" json:"current_level"`
	SubmittedAt     *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ClosedAt        *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// FallDetail maps to the fall_detail table, keyed by incident_id.
type FallDetail struct {
	IncidentID          uuid.UUID `db:"incident_id" json:"-"`
	FallType            string    `db:"fall_type" json:"fall_type"`
	Witnessed           bool      `db:"witnessed" json:"witnessed"`
	Activity            *string   `db:"activity" json:"activity,omitempty"`
	RiskTool            *string   `db:"risk_tool" json:"risk_tool,omitempty"`
	RiskScore           *int      `db:"risk_score" json:"risk_score,omitempty"`
	RestraintsInUse     bool      `db:"restraints_in_use" json:"restraints_in_use"`
	Injury              *string   `db:"injury" json:"injury,omitempty"`
	ContributingFactors *string   `db:"contributing_factors" json:"contributing_factors,omitempty"`
	Interventions       *string   `db:"interventions" json:"interventions,omitempty"`
}

// MedicationDetail maps to the medication_detail table, keyed by incident_id.
type MedicationDetail struct {
	IncidentID      uuid.UUID `db:"incident_id" json:"-"`
	MedicationName  string    `db:"medication_name" json:"medication_name"`
	Dose            *string   `db:"dose" json:"dose,omitempty"`
	Route           *string   `db:"route" json:"route,omitempty"`
	ErrorType       string    `db:"error_type" json:"error_type"`
	Stage           string    `db:"stage" json:"stage"`
	NCCMERPCategory *string   `db:"ncc_merp_category" json:"ncc_merp_category,omitempty"`
	Outcome         *string   `db:"outcome" json:"outcome,omitempty"`
}

// InfectionDetail maps to the infection_detail table, keyed by incident_id.
type InfectionDetail struct {
	IncidentID    uuid.UUID  `db:"incident_id" json:"-"`
	InfectionType string     `db:"infection_type" json:"infection_type"`
	Organism      *string    `db:"organism" json:"organism,omitempty"`
	Specimen      *string    `db:"specimen" json:"specimen,omitempty"`
	CultureDate   *time.Time `db:"culture_date" json:"culture_date,omitempty"`
	DeviceRelated bool       `db:"device_related" json:"device_related"`
	DeviceDays    *int       `db:"device_days" json:"device_days,omitempty"`
	LabConfirmed  bool       `db:"lab_confirmed" json:"lab_confirmed"`
}

// PressureUlcerDetail maps to the pressure_ulcer_detail table, keyed by
// incident_id. PushTotal is derived; see ComputePushTotal.
type PressureUlcerDetail struct {
	IncidentID         uuid.UUID `db:"incident_id" json:"-"`
	Stage              string    `db:"stage" json:"stage"`
	Site               string    `db:"site" json:"site"`
	PresentOnAdmission bool      `db:"present_on_admission" json:"present_on_admission"`
	PushLength         *int      `db:"push_length" json:"push_length,omitempty"`
	PushExudate        *int      `db:"push_exudate" json:"push_exudate,omitempty"`
	PushTissue         *int      `db:"push_tissue" json:"push_tissue,omitempty"`
	PushTotal          *int      `db:"push_total" json:"push_total,omitempty"`
}

// ComputePushTotal returns length+exudate+tissue when all three PUSH
// sub-scores are present, nil otherwise. Resulting range is 0-17. Always
// computed server-side; client-supplied totals are discarded.
func ComputePushTotal(length, exudate, tissue *int) *int {
	if length == nil || exudate == nil || tissue == nil {
		return nil
	}
	total := *length + *exudate + *tissue
	return &total
}

// Approval maps to the approval table: one row per decision step. Decided
// rows are immutable; a resubmission opens a fresh level-1 row.
type Approval struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	IncidentID uuid.UUID  `db:"incident_id" json:"incident_id"`
	Level      int        `db:"level" json:"level"`
	Status     string     `db:"status" json:"status"`
	DecidedBy  *uuid.UUID `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt  *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	Comment    *string    `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// PendingApproval is an approval joined with its incident summary, used by
// the pending-approvals inbox.
type PendingApproval struct {
	Approval
	ReportNo     string    `db:"report_no" json:"report_no"`
	IncidentType string    `db:"incident_type" json:"incident_type"`
	HarmLevel    string    `db:"harm_level" json:"harm_level"`
	EventDate    time.Time `db:"event_date" json:"event_date"`
	DepartmentID uuid.UUID `db:"department_id" json:"department_id"`
	PatientName  string    `db:"patient_name" json:"patient_name"`
}

// Attachment maps to the attachment table. Bytes live in the blob store
// under StorageKey; the row is metadata.
type Attachment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	IncidentID  uuid.UUID `db:"incident_id" json:"incident_id"`
	Filename    string    `db:"filename" json:"filename"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	SHA256      string    `db:"sha256" json:"sha256"`
	StorageKey  string    `db:"storage_key" json:"-"`
	UploadedBy  uuid.UUID `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
