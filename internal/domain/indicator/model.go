package indicator

import (
	"time"

	"github.com/google/uuid"
)

// Measurement units. The unit fixes the multiplier applied to
// numerator/denominator: percentages scale by 100, device-day rates by
// 1000, plain counts not at all.
const (
	UnitPercent = "percent"
	UnitPer1000 = "per_1000"
	UnitCount   = "count"
)

// Entry frequencies.
const (
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
)

// Target directions: which side of the target is good. Infection rates
// want "below", hand-hygiene compliance wants "above".
const (
	DirectionBelow = "below"
	DirectionAbove = "above"
)

func ValidUnit(u string) bool {
	switch u {
	case UnitPercent, UnitPer1000, UnitCount:
		return true
	}
	return false
}

func ValidFrequency(f string) bool {
	return f == FrequencyMonthly || f == FrequencyQuarterly
}

func ValidDirection(d string) bool {
	return d == DirectionBelow || d == DirectionAbove
}

// UnitMultiplier returns the scaling factor the unit implies.
func UnitMultiplier(unit string) int {
	switch unit {
	case UnitPercent:
		return 100
	case UnitPer1000:
		return 1000
	default:
		return 1
	}
}

// ValidPeriod reports whether p is a YYYY-MM month key. Zero-padded
// months keep period strings lexicographically ordered, which the range
// queries rely on.
func ValidPeriod(p string) bool {
	if len(p) != 7 {
		return false
	}
	_, err := time.Parse("2006-01", p)
	return err == nil
}

// MeetsTarget evaluates a value against a target in the configured
// direction, or nil when no target is set.
func MeetsTarget(direction string, value float64, target *float64) *bool {
	if target == nil {
		return nil
	}
	var ok bool
	if direction == DirectionAbove {
		ok = value >= *target
	} else {
		ok = value <= *target
	}
	return &ok
}

// Config maps to the indicator_config table: one tracked quality
// indicator, e.g. falls per 1000 patient-days or hand-hygiene compliance.
type Config struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Code         string     `db:"code" json:"code"`
	Name         string     `db:"name" json:"name"`
	Description  *string    `db:"description" json:"description,omitempty"`
	Unit         string     `db:"unit" json:"unit"`
	Multiplier   int        `db:"multiplier" json:"multiplier"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Frequency    string     `db:"frequency" json:"frequency"`
	Target       *float64   `db:"target" json:"target,omitempty"`
	Direction    string     `db:"direction" json:"direction"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Value maps to the indicator_value table: one measured period. value is
// computed at entry time from the numerator, denominator and the
// indicator's multiplier; it is never accepted from the client.
type Value struct {
	ID          uuid.UUID `db:"id" json:"id"`
	IndicatorID uuid.UUID `db:"indicator_id" json:"indicator_id"`
	Period      string    `db:"period" json:"period"`
	Numerator   float64   `db:"numerator" json:"numerator"`
	Denominator float64   `db:"denominator" json:"denominator"`
	Value       float64   `db:"value" json:"value"`
	EnteredBy   uuid.UUID `db:"entered_by" json:"entered_by"`
	Note        *string   `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TrendPoint is one period of the chart feed. meets_target is null when
// the indicator has no target.
type TrendPoint struct {
	Period      string   `json:"period"`
	Value       float64  `json:"value"`
	Target      *float64 `json:"target,omitempty"`
	MeetsTarget *bool    `json:"meets_target,omitempty"`
}
