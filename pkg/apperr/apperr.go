package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// Common service errors. Using sentinel variables lets handlers map error
// conditions to HTTP statuses via errors.Is instead of brittle string
// comparisons.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates rejected input. Use Validation or Validationf
	// to attach field-keyed messages the frontend can render inline.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned on uniqueness violations (duplicate email,
	// report number, indicator period).
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the caller's role does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrState is returned on illegal status transitions, e.g. approving a
	// draft report.
	ErrState = errors.New("invalid state")
)

// ValidationError carries per-field messages for a rejected request body.
// errors.Is(err, ErrValidation) holds for every ValidationError.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation wraps a field→message map as a ValidationError.
func Validation(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// Validationf builds a single-field ValidationError.
func Validationf(field, format string, args ...interface{}) error {
	return &ValidationError{Fields: map[string]string{field: fmt.Sprintf(format, args...)}}
}

// NotFoundf wraps ErrNotFound with context about what was looked up.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with context about the colliding value.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Forbiddenf wraps ErrForbidden with the denied operation.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

// Statef wraps ErrState with the rejected transition.
func Statef(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrState)...)
}

// JSON writes the HTTP response for a service error: 404 for ErrNotFound,
// 400 for ErrValidation and ErrState, 409 for ErrConflict, 403 for
// ErrForbidden. Anything unrecognized becomes a 500 with a generic body;
// the request logger records the underlying error.
func JSON(c echo.Context, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"message": "validation failed",
			"fields":  ve.Fields,
		})
	case errors.Is(err, ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"message": err.Error()})
	case errors.Is(err, ErrConflict):
		return c.JSON(http.StatusConflict, map[string]string{"message": err.Error()})
	case errors.Is(err, ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"message": err.Error()})
	case errors.Is(err, ErrState):
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	default:
		// Return the mapped response but surface the original error to the
		// logging middleware.
		if werr := c.JSON(http.StatusInternalServerError, map[string]string{"message": "internal server error"}); werr != nil {
			return werr
		}
		return err
	}
}
