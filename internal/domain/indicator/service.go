package indicator

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/pkg/apperr"
)

type Service struct {
	indicators Repository
}

func NewService(indicators Repository) *Service {
	return &Service{indicators: indicators}
}

func isQuality(a auth.Actor) bool {
	return a.Role == identity.RoleQuality || a.Role == identity.RoleAdmin
}

type CreateConfigRequest struct {
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Description  *string    `json:"description,omitempty"`
	Unit         string     `json:"unit"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	Frequency    string     `json:"frequency"`
	Target       *float64   `json:"target,omitempty"`
	Direction    string     `json:"direction"`
}

// Create registers an indicator. The multiplier is always derived from
// the unit; new indicators start active.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req *CreateConfigRequest) (*Config, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("managing indicators requires the quality role")
	}

	fields := map[string]string{}
	validateConfig(fields, req.Code, req.Name, req.Unit, req.Frequency, req.Direction)
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	cfg := &Config{
		Code:         strings.TrimSpace(req.Code),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Unit:         req.Unit,
		Multiplier:   UnitMultiplier(req.Unit),
		DepartmentID: req.DepartmentID,
		Frequency:    req.Frequency,
		Target:       req.Target,
		Direction:    req.Direction,
		Active:       true,
	}
	if err := s.indicators.Create(ctx, cfg); err != nil {
		return nil, err
	}
	return s.indicators.GetByID(ctx, cfg.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Config, error) {
	return s.indicators.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Config, int, error) {
	return s.indicators.List(ctx, f)
}

type UpdateConfigRequest struct {
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Description  *string    `json:"description,omitempty"`
	Unit         string     `json:"unit"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	Frequency    string     `json:"frequency"`
	Target       *float64   `json:"target,omitempty"`
	Direction    string     `json:"direction"`
	Active       bool       `json:"active"`
}

// Update replaces the configuration. Changing the unit re-derives the
// multiplier for future entries; already-recorded values keep the value
// computed at entry time until their period is re-entered.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, req *UpdateConfigRequest) (*Config, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("managing indicators requires the quality role")
	}
	cfg, err := s.indicators.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	validateConfig(fields, req.Code, req.Name, req.Unit, req.Frequency, req.Direction)
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	cfg.Code = strings.TrimSpace(req.Code)
	cfg.Name = strings.TrimSpace(req.Name)
	cfg.Description = req.Description
	cfg.Unit = req.Unit
	cfg.Multiplier = UnitMultiplier(req.Unit)
	cfg.DepartmentID = req.DepartmentID
	cfg.Frequency = req.Frequency
	cfg.Target = req.Target
	cfg.Direction = req.Direction
	cfg.Active = req.Active

	if err := s.indicators.Update(ctx, cfg); err != nil {
		return nil, err
	}
	return s.indicators.GetByID(ctx, id)
}

func validateConfig(fields map[string]string, code, name, unit, frequency, direction string) {
	if strings.TrimSpace(code) == "" {
		fields["code"] = "code is required"
	}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "name is required"
	}
	if !ValidUnit(unit) {
		fields["unit"] = "unit must be one of percent, per_1000, count"
	}
	if !ValidFrequency(frequency) {
		fields["frequency"] = "frequency must be one of monthly, quarterly"
	}
	if !ValidDirection(direction) {
		fields["direction"] = "direction must be one of below, above"
	}
}

type RecordValueRequest struct {
	Period      string  `json:"period"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
	Note        *string `json:"note,omitempty"`
}

// RecordValue upserts one period's measurement. The stored value is
// always computed here from the indicator's unit; re-entering a period
// replaces its numbers.
func (s *Service) RecordValue(ctx context.Context, actor auth.Actor, indicatorID uuid.UUID, req *RecordValueRequest) (*Value, error) {
	if !isQuality(actor) {
		return nil, apperr.Forbiddenf("recording indicator values requires the quality role")
	}
	cfg, err := s.indicators.GetByID(ctx, indicatorID)
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, apperr.Statef("indicator %s is inactive", cfg.Code)
	}

	fields := map[string]string{}
	if !ValidPeriod(req.Period) {
		fields["period"] = "period must be a month in YYYY-MM format"
	}
	if req.Numerator < 0 {
		fields["numerator"] = "numerator must not be negative"
	}
	if cfg.Unit != UnitCount && req.Denominator <= 0 {
		fields["denominator"] = "denominator must be greater than zero for rate indicators"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	v := &Value{
		IndicatorID: indicatorID,
		Period:      req.Period,
		Numerator:   req.Numerator,
		Denominator: req.Denominator,
		EnteredBy:   actor.ID,
		Note:        req.Note,
	}
	if cfg.Unit == UnitCount {
		// Counts have no denominator concept; zero it so the stored row
		// does not suggest a rate.
		v.Denominator = 0
		v.Value = req.Numerator
	} else {
		v.Value = req.Numerator / req.Denominator * float64(cfg.Multiplier)
	}

	if err := s.indicators.UpsertValue(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Values returns the recorded series, oldest period first.
func (s *Service) Values(ctx context.Context, id uuid.UUID, from, to string) ([]*Value, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if _, err := s.indicators.GetByID(ctx, id); err != nil {
		return nil, err
	}
	values, err := s.indicators.ListValues(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []*Value{}
	}
	return values, nil
}

// Trend returns the chart feed: the series with the indicator's target
// and a direction-aware meets_target flag on every point.
func (s *Service) Trend(ctx context.Context, id uuid.UUID, from, to string) ([]TrendPoint, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	cfg, err := s.indicators.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	values, err := s.indicators.ListValues(ctx, id, from, to)
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(values))
	for _, v := range values {
		points = append(points, TrendPoint{
			Period:      v.Period,
			Value:       v.Value,
			Target:      cfg.Target,
			MeetsTarget: MeetsTarget(cfg.Direction, v.Value, cfg.Target),
		})
	}
	return points, nil
}

func validateRange(from, to string) error {
	fields := map[string]string{}
	if from != "" && !ValidPeriod(from) {
		fields["from"] = "from must be a month in YYYY-MM format"
	}
	if to != "" && !ValidPeriod(to) {
		fields["to"] = "to must be a month in YYYY-MM format"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}
