package incident

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/pkg/apperr"
)

// exportLimit bounds how many rows one export pulls.
const exportLimit = 10000

var incidentExportHeader = []string{
	"Report No", "Type", "Status", "Event Date", "Event Time", "Department",
	"Location", "Patient Name", "MRN", "Age", "Sex", "Harm Level",
	"Description", "Immediate Action", "Approval Level", "Submitted At",
	"Closed At", "Created At",
}

var incidentExportWidths = []float64{
	16, 14, 12, 12, 10, 18, 18, 18, 14, 6, 8, 12, 40, 30, 14, 20, 20, 20,
}

// Export renders the filtered listing as an XLSX workbook.
func (s *Service) Export(ctx context.Context, actor auth.Actor, f ListFilter) ([]byte, error) {
	if actor.Role != identity.RoleQuality && actor.Role != identity.RoleAdmin {
		return nil, apperr.Forbiddenf("exporting incidents requires the quality role")
	}
	f.Limit = exportLimit
	f.Offset = 0
	incidents, _, err := s.incidents.List(ctx, f)
	if err != nil {
		return nil, err
	}
	names, err := s.incidents.DepartmentNames(ctx)
	if err != nil {
		return nil, err
	}
	return buildIncidentWorkbook(incidents, names)
}

func buildIncidentWorkbook(incidents []*Incident, departments map[uuid.UUID]string) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "Incidents"
	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for col, header := range incidentExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(sheet, name, name, incidentExportWidths[col]); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, inc := range incidents {
		row := i + 2
		values := []interface{}{
			inc.ReportNo,
			inc.Type,
			inc.Status,
			inc.EventDate.Format("2006-01-02"),
			strCell(inc.EventTime),
			departments[inc.DepartmentID],
			inc.Location,
			inc.PatientName,
			inc.PatientMRN,
			intCell(inc.PatientAge),
			strCell(inc.PatientSex),
			inc.HarmLevel,
			inc.Description,
			strCell(inc.ImmediateAction),
			inc.CurrentLevel,
			timeCell(inc.SubmittedAt),
			timeCell(inc.ClosedAt),
			inc.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freezing header row: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func strCell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intCell(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
