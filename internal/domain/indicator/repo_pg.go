package indicator

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

const configCols = `id, code, name, description, unit, multiplier,
	department_id, frequency, target, direction, active, created_at,
	updated_at`

func (r *repoPG) Create(ctx context.Context, cfg *Config) error {
	cfg.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO indicator_config (id, code, name, description, unit,
			multiplier, department_id, frequency, target, direction, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		cfg.ID, cfg.Code, cfg.Name, cfg.Description, cfg.Unit,
		cfg.Multiplier, cfg.DepartmentID, cfg.Frequency, cfg.Target,
		cfg.Direction, cfg.Active,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflictf("indicator code %s already exists", cfg.Code)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Config, error) {
	cfg, err := scanConfig(r.conn(ctx).QueryRow(ctx,
		`SELECT `+configCols+` FROM indicator_config WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("indicator %s", id)
	}
	return cfg, err
}

func (r *repoPG) Update(ctx context.Context, cfg *Config) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE indicator_config SET
			code=$2, name=$3, description=$4, unit=$5, multiplier=$6,
			department_id=$7, frequency=$8, target=$9, direction=$10,
			active=$11, updated_at=NOW()
		WHERE id = $1`,
		cfg.ID, cfg.Code, cfg.Name, cfg.Description, cfg.Unit,
		cfg.Multiplier, cfg.DepartmentID, cfg.Frequency, cfg.Target,
		cfg.Direction, cfg.Active,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Conflictf("indicator code %s already exists", cfg.Code)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("indicator %s", cfg.ID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Config, int, error) {
	where, args := buildConfigFilter(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM indicator_config`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM indicator_config%s ORDER BY code LIMIT $%d OFFSET $%d`,
			configCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var configs []*Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, 0, err
		}
		configs = append(configs, cfg)
	}
	return configs, total, rows.Err()
}

func buildConfigFilter(f ListFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DepartmentID != nil {
		add("department_id = $%d", *f.DepartmentID)
	}
	if f.Frequency != "" {
		add("frequency = $%d", f.Frequency)
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const valueCols = `id, indicator_id, period, numerator, denominator, value,
	entered_by, note, created_at, updated_at`

func (r *repoPG) UpsertValue(ctx context.Context, v *Value) error {
	// On conflict the original row survives with its id and created_at;
	// scanning them back keeps the returned value truthful either way.
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO indicator_value (id, indicator_id, period, numerator,
			denominator, value, entered_by, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (indicator_id, period) DO UPDATE SET
			numerator = EXCLUDED.numerator,
			denominator = EXCLUDED.denominator,
			value = EXCLUDED.value,
			entered_by = EXCLUDED.entered_by,
			note = EXCLUDED.note,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		uuid.New(), v.IndicatorID, v.Period, v.Numerator, v.Denominator,
		v.Value, v.EnteredBy, v.Note,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

func (r *repoPG) ListValues(ctx context.Context, indicatorID uuid.UUID, from, to string) ([]*Value, error) {
	query := `SELECT ` + valueCols + ` FROM indicator_value WHERE indicator_id = $1`
	args := []interface{}{indicatorID}
	if from != "" {
		args = append(args, from)
		query += fmt.Sprintf(" AND period >= $%d", len(args))
	}
	if to != "" {
		args = append(args, to)
		query += fmt.Sprintf(" AND period <= $%d", len(args))
	}
	query += " ORDER BY period"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []*Value
	for rows.Next() {
		v := &Value{}
		if err := rows.Scan(
			&v.ID, &v.IndicatorID, &v.Period, &v.Numerator, &v.Denominator,
			&v.Value, &v.EnteredBy, &v.Note, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func scanConfig(row pgx.Row) (*Config, error) {
	cfg := &Config{}
	err := row.Scan(
		&cfg.ID, &cfg.Code, &cfg.Name, &cfg.Description, &cfg.Unit,
		&cfg.Multiplier, &cfg.DepartmentID, &cfg.Frequency, &cfg.Target,
		&cfg.Direction, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
