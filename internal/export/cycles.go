package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"flextraff-service/internal/domain/traffic"
)

const (
	CyclesSheet = "Cycles"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var cycleHeader = []any{
	"ID", "Junction", "Status", "Total cycle (s)",
	"North (s)", "South (s)", "East (s)", "West (s)",
	"Algorithm version", "Calculation (ms)", "Created at", "Updated at",
}

// CyclesWorkbook renders a cycle history as an XLSX workbook, one row per
// record in the order given. Null timings are left as empty cells.
func CyclesWorkbook(junction traffic.Junction, cycles []traffic.CycleRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", CyclesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	title := fmt.Sprintf("%s (#%d)", junction.Name, junction.ID)
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Cycle history " + title,
		Creator: "flextraff-service",
	}); err != nil {
		return nil, fmt.Errorf("set doc props: %w", err)
	}

	if err := f.SetSheetRow(CyclesSheet, "A1", &cycleHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(cycleHeader), 1)
	if err := f.SetCellStyle(CyclesSheet, "A1", lastCol, bold); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}

	for i, rec := range cycles {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			rec.ID,
			title,
			string(rec.Status),
			nullable(rec.TotalCycleTime),
		}
		for _, l := range traffic.Lanes {
			row = append(row, nullable(rec.GreenTime(l)))
		}
		row = append(row,
			rec.AlgorithmVersion,
			rec.CalculationTimeMS,
			formatTime(rec.CreatedAt),
			formatTime(rec.UpdatedAt),
		)
		if err := f.SetSheetRow(CyclesSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(CyclesSheet, "B", "B", 28); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(CyclesSheet, "I", "L", 22); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func nullable(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
