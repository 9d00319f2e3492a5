package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/wunderabt/power-meter/internal/decode"
)

const readingsSheet = "readings"

// XLSX writes the records as a workbook with one sheet.
func XLSX(w io.Writer, records []decode.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range []string{"Time", "Uptime (s)", "Energy (Wh)", "Battery (V)"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(readingsSheet, cell, h)
	}
	for i, r := range records {
		row := i + 2
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("A%d", row), r.Time.Format(TimeLayout))
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("B%d", row), r.Uptime)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("C%d", row), r.EnergyWh)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("D%d", row), r.BatteryV)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
