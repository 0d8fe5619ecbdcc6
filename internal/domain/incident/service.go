package incident

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo/internal/domain/action"
	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/internal/platform/blobstore"
	"github.com/vigilo/vigilo/internal/platform/db"
	"github.com/vigilo/vigilo/internal/platform/notification"
	"github.com/vigilo/vigilo/pkg/apperr"
)

// Notifier is the slice of the notification manager the service needs.
// Send failures are logged and dropped; a lost email never fails the
// workflow write that triggered it.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// ActionLister supplies the follow-up actions shown on the incident detail.
// Satisfied by the action repository.
type ActionLister interface {
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*action.Action, error)
}

// RoleForLevel returns the role that decides the given approval level.
func RoleForLevel(level int) string {
	switch level {
	case 1:
		return identity.RoleDeptManager
	case 2:
		return identity.RoleQuality
	case 3:
		return identity.RoleDirector
	}
	return ""
}

// CanActOnLevel reports whether role may decide at level. Admins may act
// at any level.
func CanActOnLevel(role string, level int) bool {
	if role == identity.RoleAdmin {
		return true
	}
	return role == RoleForLevel(level)
}

// ServiceConfig wires the incident service's collaborators.
type ServiceConfig struct {
	Incidents   IncidentRepository
	Approvals   ApprovalRepository
	Attachments AttachmentRepository
	Actions     ActionLister
	Recipients  RecipientResolver
	Notifier    Notifier
	Blobs       blobstore.Store
	MaxUpload   int64
	Pool        *pgxpool.Pool
	Logger      zerolog.Logger
}

type Service struct {
	incidents   IncidentRepository
	approvals   ApprovalRepository
	attachments AttachmentRepository
	actions     ActionLister
	recipients  RecipientResolver
	notifier    Notifier
	blobs       blobstore.Store
	maxUpload   int64
	pool        *pgxpool.Pool
	logger      zerolog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = blobstore.DefaultMaxSize
	}
	return &Service{
		incidents:   cfg.Incidents,
		approvals:   cfg.Approvals,
		attachments: cfg.Attachments,
		actions:     cfg.Actions,
		recipients:  cfg.Recipients,
		notifier:    cfg.Notifier,
		blobs:       cfg.Blobs,
		maxUpload:   cfg.MaxUpload,
		pool:        cfg.Pool,
		logger:      cfg.Logger,
	}
}

// DetailPayload carries the type-specific section of a create or update
// body. Exactly the section matching the incident type must be present.
type DetailPayload struct {
	Fall          *FallDetail          `json:"fall_detail,omitempty"`
	Medication    *MedicationDetail    `json:"medication_detail,omitempty"`
	Infection     *InfectionDetail     `json:"infection_detail,omitempty"`
	PressureUlcer *PressureUlcerDetail `json:"pressure_ulcer_detail,omitempty"`
}

// IncidentRequest is the full-replace body of POST /incidents and
// PUT /incidents/:id.
type IncidentRequest struct {
	Type            string     `json:"type"`
	EventDate       string     `json:"event_date"`
	EventTime       *string    `json:"event_time,omitempty"`
	DepartmentID    uuid.UUID  `json:"department_id"`
	Location        string     `json:"location"`
	PatientName     string     `json:"patient_name"`
	PatientMRN      string     `json:"patient_mrn"`
	PatientAge      *int       `json:"patient_age,omitempty"`
	PatientSex      *string    `json:"patient_sex,omitempty"`
	PhysicianID     *uuid.UUID `json:"physician_id,omitempty"`
	Description     string     `json:"description"`
	ImmediateAction *string    `json:"immediate_action,omitempty"`
	HarmLevel       string     `json:"harm_level"`
	Anonymous       bool       `json:"anonymous"`
	DetailPayload
}

// IncidentDetail is the GET /incidents/:id response: the envelope plus its
// type detail, decision history, attachment metadata and follow-up actions.
type IncidentDetail struct {
	*Incident
	FallDetail          *FallDetail          `json:"fall_detail,omitempty"`
	MedicationDetail    *MedicationDetail    `json:"medication_detail,omitempty"`
	InfectionDetail     *InfectionDetail     `json:"infection_detail,omitempty"`
	PressureUlcerDetail *PressureUlcerDetail `json:"pressure_ulcer_detail,omitempty"`
	Approvals           []*Approval          `json:"approvals"`
	Attachments         []*Attachment        `json:"attachments"`
	Actions             []*action.Action     `json:"actions"`
}

func (r *IncidentRequest) validate() (time.Time, map[string]string) {
	fields := map[string]string{}

	if !ValidType(r.Type) {
		fields["type"] = "type must be one of fall, medication, infection, pressure_ulcer, other"
	}
	var eventDate time.Time
	if r.EventDate == "" {
		fields["event_date"] = "event_date is required"
	} else {
		var err error
		eventDate, err = time.Parse("2006-01-02", r.EventDate)
		if err != nil {
			fields["event_date"] = "event_date must be formatted YYYY-MM-DD"
		}
	}
	if r.EventTime != nil {
		if _, err := time.Parse("15:04", *r.EventTime); err != nil {
			fields["event_time"] = "event_time must be formatted HH:MM"
		}
	}
	if r.DepartmentID == uuid.Nil {
		fields["department_id"] = "department_id is required"
	}
	if strings.TrimSpace(r.Location) == "" {
		fields["location"] = "location is required"
	}
	if strings.TrimSpace(r.PatientName) == "" {
		fields["patient_name"] = "patient_name is required"
	}
	if strings.TrimSpace(r.PatientMRN) == "" {
		fields["patient_mrn"] = "patient_mrn is required"
	}
	if strings.TrimSpace(r.Description) == "" {
		fields["description"] = "description is required"
	}
	if !ValidHarmLevel(r.HarmLevel) {
		fields["harm_level"] = "harm_level must be one of none, mild, moderate, severe, death"
	}

	r.validateDetail(fields)

	return eventDate, fields
}

func (r *IncidentRequest) validateDetail(fields map[string]string) {
	present := 0
	if r.Fall != nil {
		present++
	}
	if r.Medication != nil {
		present++
	}
	if r.Infection != nil {
		present++
	}
	if r.PressureUlcer != nil {
		present++
	}
	if present > 1 {
		fields["detail"] = "only the detail section matching the incident type may be present"
		return
	}

	switch r.Type {
	case TypeFall:
		if r.Fall == nil || present != 1 {
			fields["detail"] = "fall incidents require the fall_detail section"
			return
		}
		if !ValidFallType(r.Fall.FallType) {
			fields["fall_detail.fall_type"] = "fall_type must be one of from_bed, from_chair, while_walking, in_bathroom, other"
		}
		if r.Fall.RiskScore != nil && *r.Fall.RiskScore < 0 {
			fields["fall_detail.risk_score"] = "risk_score must not be negative"
		}
	case TypeMedication:
		if r.Medication == nil || present != 1 {
			fields["detail"] = "medication incidents require the medication_detail section"
			return
		}
		if strings.TrimSpace(r.Medication.MedicationName) == "" {
			fields["medication_detail.medication_name"] = "medication_name is required"
		}
		if !ValidMedicationErrorType(r.Medication.ErrorType) {
			fields["medication_detail.error_type"] = "error_type is not a recognized medication error type"
		}
		if !ValidMedicationStage(r.Medication.Stage) {
			fields["medication_detail.stage"] = "stage must be one of prescribing, transcribing, dispensing, administering, monitoring"
		}
		if r.Medication.NCCMERPCategory != nil && !ValidNCCMERPCategory(*r.Medication.NCCMERPCategory) {
			fields["medication_detail.ncc_merp_category"] = "ncc_merp_category must be a single letter A through I"
		}
	case TypeInfection:
		if r.Infection == nil || present != 1 {
			fields["detail"] = "infection incidents require the infection_detail section"
			return
		}
		if !ValidInfectionType(r.Infection.InfectionType) {
			fields["infection_detail.infection_type"] = "infection_type must be one of cauti, clabsi, ssi, vap, other"
		}
		if r.Infection.DeviceDays != nil && *r.Infection.DeviceDays < 0 {
			fields["infection_detail.device_days"] = "device_days must not be negative"
		}
	case TypePressureUlcer:
		if r.PressureUlcer == nil || present != 1 {
			fields["detail"] = "pressure_ulcer incidents require the pressure_ulcer_detail section"
			return
		}
		if !ValidUlcerStage(r.PressureUlcer.Stage) {
			fields["pressure_ulcer_detail.stage"] = "stage must be one of 1, 2, 3, 4, unstageable, deep_tissue"
		}
		if strings.TrimSpace(r.PressureUlcer.Site) == "" {
			fields["pressure_ulcer_detail.site"] = "site is required"
		}
		if v := r.PressureUlcer.PushLength; v != nil && (*v < 0 || *v > 10) {
			fields["pressure_ulcer_detail.push_length"] = "push_length must be between 0 and 10"
		}
		if v := r.PressureUlcer.PushExudate; v != nil && (*v < 0 || *v > 3) {
			fields["pressure_ulcer_detail.push_exudate"] = "push_exudate must be between 0 and 3"
		}
		if v := r.PressureUlcer.PushTissue; v != nil && (*v < 0 || *v > 4) {
			fields["pressure_ulcer_detail.push_tissue"] = "push_tissue must be between 0 and 4"
		}
	case TypeOther:
		if present != 0 {
			fields["detail"] = "incidents of type other carry no detail section"
		}
	}
}

func (r *IncidentRequest) apply(inc *Incident, eventDate time.Time) {
	inc.Type = r.Type
	inc.EventDate = eventDate
	inc.EventTime = r.EventTime
	inc.DepartmentID = r.DepartmentID
	inc.Location = strings.TrimSpace(r.Location)
	inc.PatientName = strings.TrimSpace(r.PatientName)
	inc.PatientMRN = strings.TrimSpace(r.PatientMRN)
	inc.PatientAge = r.PatientAge
	inc.PatientSex = r.PatientSex
	inc.PhysicianID = r.PhysicianID
	inc.Description = strings.TrimSpace(r.Description)
	inc.ImmediateAction = r.ImmediateAction
	inc.HarmLevel = r.HarmLevel
	inc.Anonymous = r.Anonymous
}

// Create opens a draft report. The report number is allocated immediately
// so the reporter can reference it before submitting.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req *IncidentRequest) (*IncidentDetail, error) {
	eventDate, fields := req.validate()
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	inc := &Incident{Status: StatusDraft, ReporterID: actor.ID}
	req.apply(inc, eventDate)

	err := db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		no, err := s.incidents.NextReportNo(ctx, time.Now().UTC().Year())
		if err != nil {
			return err
		}
		inc.ReportNo = no
		if err := s.incidents.Create(ctx, inc); err != nil {
			return err
		}
		return s.saveDetail(ctx, inc.ID, req)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, actor, inc.ID)
}

func (s *Service) saveDetail(ctx context.Context, incidentID uuid.UUID, req *IncidentRequest) error {
	switch req.Type {
	case TypeFall:
		d := *req.Fall
		d.IncidentID = incidentID
		return s.incidents.SaveFallDetail(ctx, &d)
	case TypeMedication:
		d := *req.Medication
		d.IncidentID = incidentID
		return s.incidents.SaveMedicationDetail(ctx, &d)
	case TypeInfection:
		d := *req.Infection
		d.IncidentID = incidentID
		return s.incidents.SaveInfectionDetail(ctx, &d)
	case TypePressureUlcer:
		d := *req.PressureUlcer
		d.IncidentID = incidentID
		d.PushTotal = ComputePushTotal(d.PushLength, d.PushExudate, d.PushTissue)
		return s.incidents.SavePressureUlcerDetail(ctx, &d)
	}
	return nil
}

func checkViewable(actor auth.Actor, inc *Incident) error {
	if actor.Role != identity.RoleStaff {
		return nil
	}
	if inc.ReporterID == actor.ID {
		return nil
	}
	if actor.DepartmentID != nil && *actor.DepartmentID == inc.DepartmentID {
		return nil
	}
	return apperr.Forbiddenf("incident %s is not visible to you", inc.ID)
}

// Get assembles the full detail response. Staff may only view their own
// reports and their department's.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*IncidentDetail, error) {
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkViewable(actor, inc); err != nil {
		return nil, err
	}

	det := &IncidentDetail{Incident: inc}
	if err := s.loadDetail(ctx, det); err != nil {
		return nil, err
	}

	if det.Approvals, err = s.approvals.ListByIncident(ctx, id); err != nil {
		return nil, err
	}
	if det.Approvals == nil {
		det.Approvals = []*Approval{}
	}
	if det.Attachments, err = s.attachments.ListByIncident(ctx, id); err != nil {
		return nil, err
	}
	if det.Attachments == nil {
		det.Attachments = []*Attachment{}
	}
	det.Actions = []*action.Action{}
	if s.actions != nil {
		actions, err := s.actions.ListByIncident(ctx, id)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		for _, a := range actions {
			a.RefreshOverdue(now)
		}
		if actions != nil {
			det.Actions = actions
		}
	}
	return det, nil
}

func (s *Service) loadDetail(ctx context.Context, det *IncidentDetail) error {
	var err error
	switch det.Type {
	case TypeFall:
		det.FallDetail, err = s.incidents.GetFallDetail(ctx, det.ID)
	case TypeMedication:
		det.MedicationDetail, err = s.incidents.GetMedicationDetail(ctx, det.ID)
	case TypeInfection:
		det.InfectionDetail, err = s.incidents.GetInfectionDetail(ctx, det.ID)
	case TypePressureUlcer:
		det.PressureUlcerDetail, err = s.incidents.GetPressureUlcerDetail(ctx, det.ID)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

// List returns the filtered incident listing. Staff visibility is narrowed
// to own plus department before the filter reaches the repository.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter) ([]*Incident, int, error) {
	if actor.Role == identity.RoleStaff {
		f.VisibleTo = &Visibility{ReporterID: actor.ID, DepartmentID: actor.DepartmentID}
	}
	return s.incidents.List(ctx, f)
}

func canEdit(actor auth.Actor, inc *Incident) error {
	if actor.Role == identity.RoleQuality || actor.Role == identity.RoleAdmin {
		return nil
	}
	if actor.ID != inc.ReporterID {
		return apperr.Forbiddenf("only the reporter or quality staff may edit incident %s", inc.ID)
	}
	if inc.Status != StatusDraft && inc.Status != StatusRejected {
		return apperr.Statef("incident %s cannot be edited in status %s", inc.ReportNo, inc.Status)
	}
	return nil
}

// Update replaces the mutable envelope fields and the detail section.
// Changing the type swaps the detail table row.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, req *IncidentRequest) (*IncidentDetail, error) {
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canEdit(actor, inc); err != nil {
		return nil, err
	}

	eventDate, fields := req.validate()
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	typeChanged := inc.Type != req.Type
	req.apply(inc, eventDate)

	err = db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		if typeChanged {
			if err := s.incidents.DeleteDetails(ctx, id); err != nil {
				return err
			}
		}
		if err := s.incidents.Update(ctx, inc); err != nil {
			return err
		}
		return s.saveDetail(ctx, id, req)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, actor, id)
}

// Delete removes a draft report outright. Admin only; anything past draft
// is part of the quality record and stays.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if actor.Role != identity.RoleAdmin {
		return apperr.Forbiddenf("deleting incidents requires the admin role")
	}
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inc.Status != StatusDraft {
		return apperr.Statef("only draft incidents can be deleted; %s is %s", inc.ReportNo, inc.Status)
	}

	attachments, err := s.attachments.ListByIncident(ctx, id)
	if err != nil {
		return err
	}

	err = db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.incidents.DeleteDetails(ctx, id); err != nil {
			return err
		}
		return s.incidents.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	for _, att := range attachments {
		if s.blobs == nil {
			break
		}
		if err := s.blobs.Delete(ctx, att.StorageKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("key", att.StorageKey).Msg("deleting attachment blob failed")
		}
	}
	return nil
}

// Submit moves a draft or rejected report into the approval chain and
// opens the pending level-1 decision.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Incident, error) {
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != inc.ReporterID {
		return nil, apperr.Forbiddenf("only the reporter may submit incident %s", inc.ReportNo)
	}
	if inc.Status != StatusDraft && inc.Status != StatusRejected {
		return nil, apperr.Statef("incident %s cannot be submitted from status %s", inc.ReportNo, inc.Status)
	}

	now := time.Now().UTC()
	inc.Status = StatusSubmitted
	inc.CurrentLevel = 1
	inc.SubmittedAt = &now

	err = db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.incidents.Update(ctx, inc); err != nil {
			return err
		}
		return s.approvals.Create(ctx, &Approval{IncidentID: id, Level: 1, Status: ApprovalPending})
	})
	if err != nil {
		return nil, err
	}

	s.notifySubmitted(ctx, inc)

	return s.incidents.GetByID(ctx, id)
}

func (s *Service) decisionGate(actor auth.Actor, inc *Incident) (int, error) {
	if inc.Status != StatusSubmitted {
		return 0, apperr.Statef("incident %s is not awaiting approval (status %s)", inc.ReportNo, inc.Status)
	}
	level := inc.CurrentLevel
	if !CanActOnLevel(actor.Role, level) {
		return 0, apperr.Forbiddenf("level %d decisions require the %s role", level, RoleForLevel(level))
	}
	if actor.Role == identity.RoleDeptManager &&
		(actor.DepartmentID == nil || *actor.DepartmentID != inc.DepartmentID) {
		return 0, apperr.Forbiddenf("level 1 decisions are limited to the incident's department")
	}
	return level, nil
}

// Approve records the decision at the report's current level. Intermediate
// levels open the next pending approval; the final level marks the report
// approved and tells the reporter.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID, comment *string) (*Incident, error) {
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	level, err := s.decisionGate(actor, inc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	final := level == FinalApprovalLevel

	err = db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		a, err := s.approvals.GetPending(ctx, id, level)
		if err != nil {
			return err
		}
		a.Status = ApprovalApproved
		a.DecidedBy = &actor.ID
		a.DecidedAt = &now
		a.Comment = comment
		if err := s.approvals.Decide(ctx, a); err != nil {
			return err
		}

		if final {
			inc.Status = StatusApproved
			inc.CurrentLevel = 0
		} else {
			inc.CurrentLevel = level + 1
			if err := s.approvals.Create(ctx, &Approval{IncidentID: id, Level: level + 1, Status: ApprovalPending}); err != nil {
				return err
			}
		}
		return s.incidents.Update(ctx, inc)
	})
	if err != nil {
		return nil, err
	}

	if final {
		s.notifyReporter(ctx, inc, notification.TemplateIncidentApproved, map[string]string{
			"report_no": inc.ReportNo,
		})
	}

	return s.incidents.GetByID(ctx, id)
}

// Reject ends the current approval round. The reporter may revise and
// resubmit, which restarts the chain at level 1.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, comment string) (*Incident, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperr.Validationf("comment", "a rejection comment is required")
	}

	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	level, err := s.decisionGate(actor, inc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = db.RunInTx(ctx, s.pool, func(ctx context.Context) error {
		a, err := s.approvals.GetPending(ctx, id, level)
		if err != nil {
			return err
		}
		a.Status = ApprovalRejected
		a.DecidedBy = &actor.ID
		a.DecidedAt = &now
		a.Comment = &comment
		if err := s.approvals.Decide(ctx, a); err != nil {
			return err
		}

		inc.Status = StatusRejected
		inc.CurrentLevel = 0
		return s.incidents.Update(ctx, inc)
	})
	if err != nil {
		return nil, err
	}

	s.notifyReporter(ctx, inc, notification.TemplateIncidentRejected, map[string]string{
		"report_no": inc.ReportNo,
		"level":     strconv.Itoa(level),
		"comment":   comment,
	})

	return s.incidents.GetByID(ctx, id)
}

// Close archives a fully approved report.
func (s *Service) Close(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Incident, error) {
	if actor.Role != identity.RoleQuality && actor.Role != identity.RoleAdmin {
		return nil, apperr.Forbiddenf("closing incidents requires the quality role")
	}
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status != StatusApproved {
		return nil, apperr.Statef("incident %s cannot be closed from status %s", inc.ReportNo, inc.Status)
	}

	now := time.Now().UTC()
	inc.Status = StatusClosed
	inc.ClosedAt = &now
	if err := s.incidents.Update(ctx, inc); err != nil {
		return nil, err
	}
	return s.incidents.GetByID(ctx, id)
}

// ListApprovals returns the full decision history of one report.
func (s *Service) ListApprovals(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]*Approval, error) {
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkViewable(actor, inc); err != nil {
		return nil, err
	}
	approvals, err := s.approvals.ListByIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if approvals == nil {
		approvals = []*Approval{}
	}
	return approvals, nil
}

// PendingApprovals returns the decisions waiting on the caller's role.
// Department managers only see level-1 items for their own department;
// staff have nothing to decide.
func (s *Service) PendingApprovals(ctx context.Context, actor auth.Actor, limit, offset int) ([]*PendingApproval, int, error) {
	var levels []int
	var dept *uuid.UUID
	switch actor.Role {
	case identity.RoleAdmin:
		levels = []int{1, 2, 3}
	case identity.RoleDeptManager:
		if actor.DepartmentID == nil {
			return []*PendingApproval{}, 0, nil
		}
		levels = []int{1}
		dept = actor.DepartmentID
	case identity.RoleQuality:
		levels = []int{2}
	case identity.RoleDirector:
		levels = []int{3}
	default:
		return []*PendingApproval{}, 0, nil
	}

	pending, total, err := s.approvals.ListPending(ctx, levels, dept, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if pending == nil {
		pending = []*PendingApproval{}
	}
	return pending, total, nil
}

// -- Attachments --

// UploadAttachment stores the file content in the blob store and the
// metadata row alongside the incident.
func (s *Service) UploadAttachment(ctx context.Context, actor auth.Actor, incidentID uuid.UUID, filename, contentType string, size int64, content io.Reader) (*Attachment, error) {
	inc, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := checkViewable(actor, inc); err != nil {
		return nil, err
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apperr.Validationf("file", "a file name is required")
	}
	if size > s.maxUpload {
		return nil, apperr.Validationf("file", "file exceeds the %d byte upload limit", s.maxUpload)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Storage keys must stay slash-free: the blob store treats path
	// separators as traversal attempts.
	id := uuid.New()
	key := fmt.Sprintf("incident-%s-%s", incidentID, id)
	res, err := s.blobs.Put(ctx, key, content)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobTooLarge) {
			return nil, apperr.Validationf("file", "file exceeds the %d byte upload limit", s.maxUpload)
		}
		return nil, err
	}

	att := &Attachment{
		ID:          id,
		IncidentID:  incidentID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   res.Size,
		SHA256:      res.SHA256,
		StorageKey:  key,
		UploadedBy:  actor.ID,
	}
	if err := s.attachments.Create(ctx, att); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn().Err(derr).Str("key", key).Msg("cleaning up orphaned blob failed")
		}
		return nil, err
	}

	return s.attachments.GetByID(ctx, id)
}

func (s *Service) ListAttachments(ctx context.Context, actor auth.Actor, incidentID uuid.UUID) ([]*Attachment, error) {
	inc, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := checkViewable(actor, inc); err != nil {
		return nil, err
	}
	attachments, err := s.attachments.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if attachments == nil {
		attachments = []*Attachment{}
	}
	return attachments, nil
}

// DownloadAttachment returns the metadata row and an open reader over the
// stored bytes. The caller closes the reader.
func (s *Service) DownloadAttachment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Attachment, io.ReadCloser, error) {
	att, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	inc, err := s.incidents.GetByID(ctx, att.IncidentID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkViewable(actor, inc); err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Get(ctx, att.StorageKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFoundf("content of attachment %s", id)
	}
	if err != nil {
		return nil, nil, err
	}
	return att, rc, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	att, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if actor.ID != att.UploadedBy && actor.Role != identity.RoleAdmin {
		return apperr.Forbiddenf("only the uploader or an admin may delete attachment %s", id)
	}
	if err := s.attachments.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, att.StorageKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("key", att.StorageKey).Msg("deleting attachment blob failed")
	}
	return nil
}

// -- Notifications --

func (s *Service) notifySubmitted(ctx context.Context, inc *Incident) {
	if s.notifier == nil || s.recipients == nil {
		return
	}
	approvers, err := s.recipients.ApproversFor(ctx, RoleForLevel(1), &inc.DepartmentID)
	if err != nil {
		s.logger.Warn().Err(err).Str("report_no", inc.ReportNo).Msg("resolving level-1 approvers failed")
		return
	}
	data := map[string]string{
		"report_no":     inc.ReportNo,
		"incident_type": inc.Type,
		"department":    s.departmentName(ctx, inc.DepartmentID),
		"reporter":      s.reporterName(ctx, inc),
		"level":         "1",
	}
	for _, to := range approvers {
		if _, err := s.notifier.SendFromTemplate(ctx, notification.TemplateIncidentSubmitted, data, to.Email); err != nil {
			s.logger.Warn().Err(err).Str("report_no", inc.ReportNo).Str("recipient", to.Email).Msg("submission notification failed")
		}
	}
}

func (s *Service) notifyReporter(ctx context.Context, inc *Incident, templateID string, data map[string]string) {
	if s.notifier == nil || s.recipients == nil {
		return
	}
	to, err := s.recipients.Contact(ctx, inc.ReporterID)
	if err != nil {
		s.logger.Warn().Err(err).Str("report_no", inc.ReportNo).Msg("resolving reporter contact failed")
		return
	}
	if _, err := s.notifier.SendFromTemplate(ctx, templateID, data, to.Email); err != nil {
		s.logger.Warn().Err(err).Str("report_no", inc.ReportNo).Str("template", templateID).Msg("reporter notification failed")
	}
}

func (s *Service) departmentName(ctx context.Context, id uuid.UUID) string {
	names, err := s.incidents.DepartmentNames(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("resolving department names failed")
		return ""
	}
	return names[id]
}

func (s *Service) reporterName(ctx context.Context, inc *Incident) string {
	if inc.Anonymous {
		return "Anonymous"
	}
	c, err := s.recipients.Contact(ctx, inc.ReporterID)
	if err != nil {
		return "Unknown"
	}
	return c.Name
}
