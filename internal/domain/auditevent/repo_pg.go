package auditevent

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

const auditCols = `id, occurred_at, actor_id, actor_role, action, resource,
	record_id, method, path, status_code, outcome, request_id, ip_address,
	user_agent, created_at`

func (r *repoPG) Insert(ctx context.Context, ev *AuditEvent) error {
	ev.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_event (id, occurred_at, actor_id, actor_role, action,
			resource, record_id, method, path, status_code, outcome,
			request_id, ip_address, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		ev.ID, ev.OccurredAt, ev.ActorID, ev.ActorRole, ev.Action,
		ev.Resource, ev.RecordID, ev.Method, ev.Path, ev.StatusCode, ev.Outcome,
		ev.RequestID, ev.IPAddress, ev.UserAgent,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	ev, err := scanAuditEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+auditCols+` FROM audit_event WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("audit event %s", id)
	}
	return ev, err
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*AuditEvent, int, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Resource != "" {
		add("resource = $%d", f.Resource)
	}
	if f.Outcome != "" {
		add("outcome = $%d", f.Outcome)
	}
	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.RecordID != nil {
		add("record_id = $%d", *f.RecordID)
	}
	if f.From != nil {
		add("occurred_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("occurred_at < $%d", *f.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_event`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM audit_event%s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d`,
			auditCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

func scanAuditEvent(row pgx.Row) (*AuditEvent, error) {
	var ev AuditEvent
	err := row.Scan(&ev.ID, &ev.OccurredAt, &ev.ActorID, &ev.ActorRole, &ev.Action,
		&ev.Resource, &ev.RecordID, &ev.Method, &ev.Path, &ev.StatusCode,
		&ev.Outcome, &ev.RequestID, &ev.IPAddress, &ev.UserAgent, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
