package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/vigilo/vigilo/internal/platform/auth"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "incidents-by-type-month",
		Name:        "Incidents by Type and Month",
		Description: "Reported incidents grouped by event month and incident type",
		SQL: `SELECT to_char(event_date, 'YYYY-MM') AS month, incident_type, COUNT(*) AS total
			FROM incident GROUP BY month, incident_type ORDER BY month, incident_type`,
		Parameters: []string{},
	},
	{
		ID:          "incidents-by-harm-level",
		Name:        "Incidents by Harm Level",
		Description: "Reported incidents grouped by patient harm level",
		SQL:         `SELECT harm_level, COUNT(*) AS total FROM incident GROUP BY harm_level ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "open-capa-by-status",
		Name:        "Open CAPA by Status",
		Description: "Corrective/preventive actions not yet verified or cancelled, grouped by status",
		SQL: `SELECT status, COUNT(*) AS total FROM action
			WHERE status NOT IN ('verified', 'cancelled') GROUP BY status ORDER BY total DESC`,
		Parameters: []string{},
	},
	{
		ID:          "overdue-capa-count",
		Name:        "Overdue CAPA Count",
		Description: "Open or in-progress actions whose due date has passed",
		SQL: `SELECT COUNT(*) AS total FROM action
			WHERE status IN ('open', 'in_progress') AND due_date < CURRENT_DATE`,
		Parameters: []string{},
	},
	{
		ID:          "risks-by-level",
		Name:        "Risks by Level",
		Description: "Risk register entries grouped by computed risk level",
		SQL:         `SELECT level, COUNT(*) AS total FROM risk GROUP BY level ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "falls-by-department",
		Name:        "Falls by Department",
		Description: "Fall incidents grouped by reporting department",
		SQL: `SELECT d.name AS department, COUNT(*) AS total
			FROM incident i JOIN department d ON d.id = i.department_id
			WHERE i.incident_type = 'fall' GROUP BY d.name ORDER BY total DESC`,
		Parameters: []string{},
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler creates a new reporting handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole("quality", "director"))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measureID := c.Param("id")

	measure := FindMeasure(measureID)
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	// Collect parameters from query string
	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	report := MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now(),
		Results:     results,
		Parameters:  params,
	}

	return c.JSON(http.StatusOK, report)
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := h.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = values[i]
		}
		results = append(results, row)
	}

	if results == nil {
		results = []map[string]interface{}{}
	}

	return results, nil
}

// FindMeasure looks up a measure by ID, useful for testing.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
