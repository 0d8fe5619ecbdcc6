package risk

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

const riskCols = `id, risk_no, title, description, category, department_id,
	owner_id, status, probability, severity, score, level, detectability,
	rpn, identified_at, review_due, created_by, created_at, updated_at`

func (r *repoPG) NextRiskNo(ctx context.Context, year int) (string, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO yearly_sequence (scope, year, seq)
		VALUES ('risk', $1, 1)
		ON CONFLICT (scope, year) DO UPDATE SET seq = yearly_sequence.seq + 1
		RETURNING seq`, year,
	).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocating risk number: %w", err)
	}
	return fmt.Sprintf("RSK-%d-%05d", year, seq), nil
}

func (r *repoPG) Create(ctx context.Context, rk *Risk) error {
	rk.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO risk (id, risk_no, title, description, category,
			department_id, owner_id, status, probability, severity, score,
			level, detectability, rpn, identified_at, review_due, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		rk.ID, rk.RiskNo, rk.Title, rk.Description, rk.Category,
		rk.DepartmentID, rk.OwnerID, rk.Status, rk.Probability, rk.Severity,
		rk.Score, rk.Level, rk.Detectability, rk.RPN, rk.IdentifiedAt,
		rk.ReviewDue, rk.CreatedBy,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflictf("risk number %s already allocated", rk.RiskNo)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Risk, error) {
	rk, err := scanRisk(r.conn(ctx).QueryRow(ctx,
		`SELECT `+riskCols+` FROM risk WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("risk %s", id)
	}
	return rk, err
}

func (r *repoPG) Update(ctx context.Context, rk *Risk) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE risk SET
			title=$2, description=$3, category=$4, department_id=$5,
			owner_id=$6, status=$7, probability=$8, severity=$9, score=$10,
			level=$11, detectability=$12, rpn=$13, identified_at=$14,
			review_due=$15, updated_at=NOW()
		WHERE id = $1`,
		rk.ID, rk.Title, rk.Description, rk.Category, rk.DepartmentID,
		rk.OwnerID, rk.Status, rk.Probability, rk.Severity, rk.Score,
		rk.Level, rk.Detectability, rk.RPN, rk.IdentifiedAt, rk.ReviewDue,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("risk %s", rk.ID)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM risk WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("risk %s", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Risk, int, error) {
	where, args := buildRiskFilter(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM risk`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM risk%s ORDER BY score DESC, created_at DESC LIMIT $%d OFFSET $%d`,
			riskCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var risks []*Risk
	for rows.Next() {
		rk, err := scanRisk(rows)
		if err != nil {
			return nil, 0, err
		}
		risks = append(risks, rk)
	}
	return risks, total, rows.Err()
}

// buildRiskFilter renders the WHERE clause for List. Filters combine with
// AND; the free-text query searches risk number, title and description.
func buildRiskFilter(f ListFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Level != "" {
		add("level = $%d", f.Level)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DepartmentID != nil {
		add("department_id = $%d", *f.DepartmentID)
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(risk_no ILIKE $%d OR title ILIKE $%d OR description ILIKE $%d)",
			n, n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const assessmentCols = `id, risk_id, probability, severity, score, level,
	detectability, rpn, mitigation, note, assessed_by, assessed_at`

func (r *repoPG) CreateAssessment(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO risk_assessment (id, risk_id, probability, severity,
			score, level, detectability, rpn, mitigation, note, assessed_by,
			assessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.RiskID, a.Probability, a.Severity, a.Score, a.Level,
		a.Detectability, a.RPN, a.Mitigation, a.Note, a.AssessedBy,
		a.AssessedAt,
	)
	return err
}

func (r *repoPG) ListAssessments(ctx context.Context, riskID uuid.UUID) ([]*Assessment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+assessmentCols+` FROM risk_assessment
		 WHERE risk_id = $1 ORDER BY assessed_at DESC`, riskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Assessment
	for rows.Next() {
		a := &Assessment{}
		if err := rows.Scan(
			&a.ID, &a.RiskID, &a.Probability, &a.Severity, &a.Score,
			&a.Level, &a.Detectability, &a.RPN, &a.Mitigation, &a.Note,
			&a.AssessedBy, &a.AssessedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) MatrixCounts(ctx context.Context) (map[MatrixKey]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT probability, severity, COUNT(*)
		FROM risk
		WHERE status IN ('open', 'mitigating')
		GROUP BY probability, severity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[MatrixKey]int)
	for rows.Next() {
		var key MatrixKey
		var n int
		if err := rows.Scan(&key.Probability, &key.Severity, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func scanRisk(row pgx.Row) (*Risk, error) {
	rk := &Risk{}
	err := row.Scan(
		&rk.ID, &rk.RiskNo, &rk.Title, &rk.Description, &rk.Category,
		&rk.DepartmentID, &rk.OwnerID, &rk.Status, &rk.Probability,
		&rk.Severity, &rk.Score, &rk.Level, &rk.Detectability, &rk.RPN,
		&rk.IdentifiedAt, &rk.ReviewDue, &rk.CreatedBy, &rk.CreatedAt,
		&rk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rk, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
