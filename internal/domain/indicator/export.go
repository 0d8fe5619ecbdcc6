package indicator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/pkg/apperr"
)

var valueExportHeader = []string{
	"Period", "Numerator", "Denominator", "Value", "Target", "Meets Target", "Note",
}

var valueExportWidths = []float64{10, 12, 12, 12, 10, 14, 40}

// Export renders the indicator's series as an XLSX workbook. The second
// return is the indicator code, for the download filename.
func (s *Service) Export(ctx context.Context, actor auth.Actor, id uuid.UUID, from, to string) ([]byte, string, error) {
	if !isQuality(actor) {
		return nil, "", apperr.Forbiddenf("exporting indicator values requires the quality role")
	}
	if err := validateRange(from, to); err != nil {
		return nil, "", err
	}
	cfg, err := s.indicators.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	values, err := s.indicators.ListValues(ctx, id, from, to)
	if err != nil {
		return nil, "", err
	}
	data, err := buildValueWorkbook(cfg, values)
	if err != nil {
		return nil, "", err
	}
	return data, cfg.Code, nil
}

func buildValueWorkbook(cfg *Config, values []*Value) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "Values"
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

	for col, header := range valueExportHeader {
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
		if err := f.SetColWidth(sheet, name, name, valueExportWidths[col]); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, v := range values {
		row := i + 2
		cells := []interface{}{
			v.Period,
			v.Numerator,
			v.Denominator,
			v.Value,
			floatCell(cfg.Target),
			boolCell(MeetsTarget(cfg.Direction, v.Value, cfg.Target)),
			strCell(v.Note),
		}
		for col, value := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
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

func floatCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func boolCell(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "yes"
	}
	return "no"
}
