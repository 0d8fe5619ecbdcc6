package action

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

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const actionCols = `id, incident_id, title, description, action_type, status,
	assignee_id, department_id, due_date, completed_at, verified_by,
	verified_at, verification_note, created_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, a *Action) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO action (id, incident_id, title, description, action_type,
			status, assignee_id, department_id, due_date, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.IncidentID, a.Title, a.Description, a.ActionType,
		a.Status, a.AssigneeID, a.DepartmentID, a.DueDate, a.CreatedBy,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Action, error) {
	a, err := scanAction(r.conn(ctx).QueryRow(ctx,
		`SELECT `+actionCols+` FROM action WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("action %s", id)
	}
	return a, err
}

func (r *repoPG) Update(ctx context.Context, a *Action) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE action SET
			title=$2, description=$3, action_type=$4, status=$5, assignee_id=$6,
			department_id=$7, due_date=$8, completed_at=$9, verified_by=$10,
			verified_at=$11, verification_note=$12, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Title, a.Description, a.ActionType, a.Status, a.AssigneeID,
		a.DepartmentID, a.DueDate, a.CompletedAt, a.VerifiedBy,
		a.VerifiedAt, a.VerificationNote,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("action %s", a.ID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Action, int, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.IncidentID != nil {
		add("incident_id = $%d", *f.IncidentID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.AssigneeID != nil {
		add("assignee_id = $%d", *f.AssigneeID)
	}
	if f.DepartmentID != nil {
		add("department_id = $%d", *f.DepartmentID)
	}
	if f.Overdue {
		conds = append(conds, "status IN ('open','in_progress') AND due_date < CURRENT_DATE")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM action`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM action%s ORDER BY due_date, created_at LIMIT $%d OFFSET $%d`,
			actionCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, 0, err
		}
		actions = append(actions, a)
	}
	return actions, total, rows.Err()
}

func (r *repoPG) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Action, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+actionCols+` FROM action WHERE incident_id = $1 ORDER BY created_at`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (r *repoPG) IncidentRef(ctx context.Context, incidentID uuid.UUID) (string, uuid.UUID, error) {
	var reportNo string
	var departmentID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT report_no, department_id FROM incident WHERE id = $1`, incidentID).
		Scan(&reportNo, &departmentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", uuid.Nil, apperr.NotFoundf("incident %s", incidentID)
	}
	if err != nil {
		return "", uuid.Nil, err
	}
	return reportNo, departmentID, nil
}

func scanAction(row pgx.Row) (*Action, error) {
	var a Action
	err := row.Scan(&a.ID, &a.IncidentID, &a.Title, &a.Description, &a.ActionType,
		&a.Status, &a.AssigneeID, &a.DepartmentID, &a.DueDate, &a.CompletedAt,
		&a.VerifiedBy, &a.VerifiedAt, &a.VerificationNote, &a.CreatedBy,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type contactResolverPG struct {
	pool *pgxpool.Pool
}

func NewContactResolver(pool *pgxpool.Pool) ContactResolver {
	return &contactResolverPG{pool: pool}
}

func (r *contactResolverPG) Contact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	var c Contact
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

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
