package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigilo/vigilo/internal/platform/db"
	"github.com/vigilo/vigilo/pkg/apperr"
)

// -- Incident Repository --

type incidentRepoPG struct {
	pool *pgxpool.Pool
}

func NewIncidentRepo(pool *pgxpool.Pool) IncidentRepository {
	return &incidentRepoPG{pool: pool}
}

func (r *incidentRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const incidentCols = `id, report_no, incident_type, status, event_date, event_time,
	department_id, location, patient_name, patient_mrn, patient_age, patient_sex,
	physician_id, description, immediate_action, harm_level, reporter_id,
	anonymous, current_level, submitted_at, closed_at, created_at, updated_at`

func (r *incidentRepoPG) NextReportNo(ctx context.Context, year int) (string, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO yearly_sequence (scope, year, seq)
		VALUES ('incident', $1, 1)
		ON CONFLICT (scope, year) DO UPDATE SET seq = yearly_sequence.seq + 1
		RETURNING seq`, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocating report number: %w", err)
	}
	return fmt.Sprintf("PSR-%d-%05d", year, seq), nil
}

func (r *incidentRepoPG) Create(ctx context.Context, inc *Incident) error {
	inc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO incident (id, report_no, incident_type, status, event_date, event_time,
			department_id, location, patient_name, patient_mrn, patient_age, patient_sex,
			physician_id, description, immediate_action, harm_level, reporter_id,
			anonymous, current_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		inc.ID, inc.ReportNo, inc.Type, inc.Status, inc.EventDate, inc.EventTime,
		inc.DepartmentID, inc.Location, inc.PatientName, inc.PatientMRN, inc.PatientAge,
		inc.PatientSex, inc.PhysicianID, inc.Description, inc.ImmediateAction,
		inc.HarmLevel, inc.ReporterID, inc.Anonymous, inc.CurrentLevel,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflictf("report number %s already allocated", inc.ReportNo)
	}
	return err
}

func (r *incidentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Incident, error) {
	inc, err := scanIncident(r.conn(ctx).QueryRow(ctx,
		`SELECT `+incidentCols+` FROM incident WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("incident %s", id)
	}
	return inc, err
}

func (r *incidentRepoPG) Update(ctx context.Context, inc *Incident) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE incident SET
			incident_type=$2, status=$3, event_date=$4, event_time=$5, department_id=$6,
			location=$7, patient_name=$8, patient_mrn=$9, patient_age=$10, patient_sex=$11,
			physician_id=$12, description=$13, immediate_action=$14, harm_level=$15,
			anonymous=$16, current_level=$17, submitted_at=$18, closed_at=$19,
			updated_at=NOW()
		WHERE id = $1`,
		inc.ID, inc.Type, inc.Status, inc.EventDate, inc.EventTime, inc.DepartmentID,
		inc.Location, inc.PatientName, inc.PatientMRN, inc.PatientAge, inc.PatientSex,
		inc.PhysicianID, inc.Description, inc.ImmediateAction, inc.HarmLevel,
		inc.Anonymous, inc.CurrentLevel, inc.SubmittedAt, inc.ClosedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("incident %s", inc.ID)
	}
	return nil
}

func (r *incidentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM incident WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("incident %s", id)
	}
	return nil
}

func (r *incidentRepoPG) List(ctx context.Context, f ListFilter) ([]*Incident, int, error) {
	where, args := buildIncidentFilter(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM incident`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM incident%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			incidentCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var incidents []*Incident
	for rows.Next() {
		inc, err := scanIncidentRows(rows)
		if err != nil {
			return nil, 0, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, total, rows.Err()
}

// buildIncidentFilter renders the WHERE clause for List. Filters combine
// with AND; the free-text query searches report number, patient fields and
// description.
func buildIncidentFilter(f ListFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Type != "" {
		add("incident_type = $%d", f.Type)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DepartmentID != nil {
		add("department_id = $%d", *f.DepartmentID)
	}
	if f.HarmLevel != "" {
		add("harm_level = $%d", f.HarmLevel)
	}
	if f.From != nil {
		add("event_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("event_date <= $%d", *f.To)
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(report_no ILIKE $%d OR patient_name ILIKE $%d OR patient_mrn ILIKE $%d OR description ILIKE $%d)",
			n, n, n, n))
	}
	if f.VisibleTo != nil {
		if f.VisibleTo.DepartmentID != nil {
			args = append(args, f.VisibleTo.ReporterID, *f.VisibleTo.DepartmentID)
			conds = append(conds, fmt.Sprintf("(reporter_id = $%d OR department_id = $%d)",
				len(args)-1, len(args)))
		} else {
			add("reporter_id = $%d", f.VisibleTo.ReporterID)
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// -- Detail rows --

func (r *incidentRepoPG) SaveFallDetail(ctx context.Context, d *FallDetail) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO fall_detail (incident_id, fall_type, witnessed, activity, risk_tool,
			risk_score, restraints_in_use, injury, contributing_factors, interventions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (incident_id) DO UPDATE SET
			fall_type=$2, witnessed=$3, activity=$4, risk_tool=$5, risk_score=$6,
			restraints_in_use=$7, injury=$8, contributing_factors=$9, interventions=$10`,
		d.IncidentID, d.FallType, d.Witnessed, d.Activity, d.RiskTool,
		d.RiskScore, d.RestraintsInUse, d.Injury, d.ContributingFactors, d.Interventions,
	)
	return err
}

func (r *incidentRepoPG) SaveMedicationDetail(ctx context.Context, d *MedicationDetail) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_detail (incident_id, medication_name, dose, route,
			error_type, stage, ncc_merp_category, outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (incident_id) DO UPDATE SET
			medication_name=$2, dose=$3, route=$4, error_type=$5, stage=$6,
			ncc_merp_category=$7, outcome=$8`,
		d.IncidentID, d.MedicationName, d.Dose, d.Route,
		d.ErrorType, d.Stage, d.NCCMERPCategory, d.Outcome,
	)
	return err
}

func (r *incidentRepoPG) SaveInfectionDetail(ctx context.Context, d *InfectionDetail) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO infection_detail (incident_id, infection_type, organism, specimen,
			culture_date, device_related, device_days, lab_confirmed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (incident_id) DO UPDATE SET
			infection_type=$2, organism=$3, specimen=$4, culture_date=$5,
			device_related=$6, device_days=$7, lab_confirmed=$8`,
		d.IncidentID, d.InfectionType, d.Organism, d.Specimen,
		d.CultureDate, d.DeviceRelated, d.DeviceDays, d.LabConfirmed,
	)
	return err
}

func (r *incidentRepoPG) SavePressureUlcerDetail(ctx context.Context, d *PressureUlcerDetail) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pressure_ulcer_detail (incident_id, stage, site, present_on_admission,
			push_length, push_exudate, push_tissue, push_total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (incident_id) DO UPDATE SET
			stage=$2, site=$3, present_on_admission=$4, push_length=$5,
			push_exudate=$6, push_tissue=$7, push_total=$8`,
		d.IncidentID, d.Stage, d.Site, d.PresentOnAdmission,
		d.PushLength, d.PushExudate, d.PushTissue, d.PushTotal,
	)
	return err
}

func (r *incidentRepoPG) GetFallDetail(ctx context.Context, incidentID uuid.UUID) (*FallDetail, error) {
	var d FallDetail
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT incident_id, fall_type, witnessed, activity, risk_tool, risk_score,
			restraints_in_use, injury, contributing_factors, interventions
		FROM fall_detail WHERE incident_id = $1`, incidentID,
	).Scan(&d.IncidentID, &d.FallType, &d.Witnessed, &d.Activity, &d.RiskTool,
		&d.RiskScore, &d.RestraintsInUse, &d.Injury, &d.ContributingFactors, &d.Interventions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("fall detail for incident %s", incidentID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *incidentRepoPG) GetMedicationDetail(ctx context.Context, incidentID uuid.UUID) (*MedicationDetail, error) {
	var d MedicationDetail
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT incident_id, medication_name, dose, route, error_type, stage,
			ncc_merp_category, outcome
		FROM medication_detail WHERE incident_id = $1`, incidentID,
	).Scan(&d.IncidentID, &d.MedicationName, &d.Dose, &d.Route, &d.ErrorType,
		&d.Stage, &d.NCCMERPCategory, &d.Outcome)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("medication detail for incident %s", incidentID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *incidentRepoPG) GetInfectionDetail(ctx context.Context, incidentID uuid.UUID) (*InfectionDetail, error) {
	var d InfectionDetail
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT incident_id, infection_type, organism, specimen, culture_date,
			device_related, device_days, lab_confirmed
		FROM infection_detail WHERE incident_id = $1`, incidentID,
	).Scan(&d.IncidentID, &d.InfectionType, &d.Organism, &d.Specimen, &d.CultureDate,
		&d.DeviceRelated, &d.DeviceDays, &d.LabConfirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("infection detail for incident %s", incidentID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *incidentRepoPG) GetPressureUlcerDetail(ctx context.Context, incidentID uuid.UUID) (*PressureUlcerDetail, error) {
	var d PressureUlcerDetail
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT incident_id, stage, site, present_on_admission, push_length,
			push_exudate, push_tissue, push_total
		FROM pressure_ulcer_detail WHERE incident_id = $1`, incidentID,
	).Scan(&d.IncidentID, &d.Stage, &d.Site, &d.PresentOnAdmission, &d.PushLength,
		&d.PushExudate, &d.PushTissue, &d.PushTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("pressure ulcer detail for incident %s", incidentID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *incidentRepoPG) DeleteDetails(ctx context.Context, incidentID uuid.UUID) error {
	for _, table := range []string{"fall_detail", "medication_detail", "infection_detail", "pressure_ulcer_detail"} {
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM `+table+` WHERE incident_id = $1`, incidentID); err != nil {
			return err
		}
	}
	return nil
}

func (r *incidentRepoPG) DepartmentNames(ctx context.Context) (map[uuid.UUID]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM department`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[uuid.UUID]string)
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func scanIncident(row pgx.Row) (*Incident, error) {
	var inc Incident
	err := row.Scan(&inc.ID, &inc.ReportNo, &inc.Type, &inc.Status, &inc.EventDate,
		&inc.EventTime, &inc.DepartmentID, &inc.Location, &inc.PatientName,
		&inc.PatientMRN, &inc.PatientAge, &inc.PatientSex, &inc.PhysicianID,
		&inc.Description, &inc.ImmediateAction, &inc.HarmLevel, &inc.ReporterID,
		&inc.Anonymous, &inc.CurrentLevel, &inc.SubmittedAt, &inc.ClosedAt,
		&inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func scanIncidentRows(rows pgx.Rows) (*Incident, error) {
	return scanIncident(rows)
}

// -- Approval Repository --

type approvalRepoPG struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepoPG{pool: pool}
}

func (r *approvalRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const approvalCols = `id, incident_id, level, status, decided_by, decided_at, comment, created_at`

func (r *approvalRepoPG) Create(ctx context.Context, a *Approval) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO approval (id, incident_id, level, status)
		VALUES ($1,$2,$3,$4)`,
		a.ID, a.IncidentID, a.Level, a.Status,
	)
	return err
}

func (r *approvalRepoPG) GetPending(ctx context.Context, incidentID uuid.UUID, level int) (*Approval, error) {
	a, err := scanApproval(r.conn(ctx).QueryRow(ctx, `
		SELECT `+approvalCols+` FROM approval
		WHERE incident_id = $1 AND level = $2 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, incidentID, level))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("pending approval for incident %s at level %d", incidentID, level)
	}
	return a, err
}

func (r *approvalRepoPG) Decide(ctx context.Context, a *Approval) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE approval SET status=$2, decided_by=$3, decided_at=$4, comment=$5
		WHERE id = $1 AND status = 'pending'`,
		a.ID, a.Status, a.DecidedBy, a.DecidedAt, a.Comment,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Statef("approval %s already decided", a.ID)
	}
	return nil
}

func (r *approvalRepoPG) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Approval, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+approvalCols+` FROM approval
		WHERE incident_id = $1 ORDER BY created_at, level`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []*Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

func (r *approvalRepoPG) ListPending(ctx context.Context, levels []int, departmentID *uuid.UUID, limit, offset int) ([]*PendingApproval, int, error) {
	if len(levels) == 0 {
		return nil, 0, nil
	}
	lv := make([]int32, len(levels))
	for i, l := range levels {
		lv[i] = int32(l)
	}

	where := ` WHERE a.status = 'pending' AND a.level = ANY($1)`
	args := []interface{}{lv}
	if departmentID != nil {
		args = append(args, *departmentID)
		where += fmt.Sprintf(` AND i.department_id = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM approval a JOIN incident i ON i.id = a.incident_id`+where,
		args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT a.id, a.incident_id, a.level, a.status, a.decided_by, a.decided_at,
			a.comment, a.created_at, i.report_no, i.incident_type, i.harm_level,
			i.event_date, i.department_id, i.patient_name
		FROM approval a
		JOIN incident i ON i.id = a.incident_id
		%s ORDER BY a.created_at LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var pending []*PendingApproval
	for rows.Next() {
		var p PendingApproval
		if err := rows.Scan(&p.ID, &p.IncidentID, &p.Level, &p.Status, &p.DecidedBy,
			&p.DecidedAt, &p.Comment, &p.CreatedAt, &p.ReportNo, &p.IncidentType,
			&p.HarmLevel, &p.EventDate, &p.DepartmentID, &p.PatientName); err != nil {
			return nil, 0, err
		}
		pending = append(pending, &p)
	}
	return pending, total, rows.Err()
}

func scanApproval(row pgx.Row) (*Approval, error) {
	var a Approval
	err := row.Scan(&a.ID, &a.IncidentID, &a.Level, &a.Status, &a.DecidedBy,
		&a.DecidedAt, &a.Comment, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// -- Attachment Repository --

type attachmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepo(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepoPG{pool: pool}
}

func (r *attachmentRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const attachmentCols = `id, incident_id, filename, content_type, size_bytes, sha256, storage_key, uploaded_by, created_at`

func (r *attachmentRepoPG) Create(ctx context.Context, a *Attachment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO attachment (id, incident_id, filename, content_type, size_bytes,
			sha256, storage_key, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.IncidentID, a.Filename, a.ContentType, a.SizeBytes,
		a.SHA256, a.StorageKey, a.UploadedBy,
	)
	return err
}

func (r *attachmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	a, err := scanAttachment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM attachment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("attachment %s", id)
	}
	return a, err
}

func (r *attachmentRepoPG) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attachmentCols+` FROM attachment WHERE incident_id = $1 ORDER BY created_at`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (r *attachmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM attachment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("attachment %s", id)
	}
	return nil
}

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.IncidentID, &a.Filename, &a.ContentType, &a.SizeBytes,
		&a.SHA256, &a.StorageKey, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// -- Recipient directory --

// UserContact is a notification recipient.
type UserContact struct {
	Name  string
	Email string
}

// RecipientResolver looks up notification recipients. Implemented against
// the users table; mocked in tests.
type RecipientResolver interface {
	// ApproversFor returns the active users holding role, limited to one
	// department when departmentID is set.
	ApproversFor(ctx context.Context, role string, departmentID *uuid.UUID) ([]UserContact, error)
	Contact(ctx context.Context, id uuid.UUID) (*UserContact, error)
}

type recipientsPG struct {
	pool *pgxpool.Pool
}

func NewRecipientResolver(pool *pgxpool.Pool) RecipientResolver {
	return &recipientsPG{pool: pool}
}

func (r *recipientsPG) ApproversFor(ctx context.Context, role string, departmentID *uuid.UUID) ([]UserContact, error) {
	query := `SELECT full_name, email FROM users WHERE role = $1 AND active`
	args := []interface{}{role}
	if departmentID != nil {
		query += ` AND department_id = $2`
		args = append(args, *departmentID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []UserContact
	for rows.Next() {
		var c UserContact
		if err := rows.Scan(&c.Name, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *recipientsPG) Contact(ctx context.Context, id uuid.UUID) (*UserContact, error) {
	var c UserContact
	err := r.pool.QueryRow(ctx, `SELECT full_name, email FROM users WHERE id = $1`, id).
		Scan(&c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("user %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// querier is the subset of pgx command methods shared by pools,
// connections and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
