package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/seisqc/seisqc/pkg/qc"
)

const (
	reportsSheet = "Reports"
	summarySheet = "Daily"
)

var reportHeader = []interface{}{
	"waveform", "parameter", "value", "start", "end", "window_length", "created", "creator",
}

var summaryHeader = []interface{}{
	"stream", "day", "windows", "mean_availability", "min_availability", "gaps", "overlaps",
}

// WriteXLSX writes reports, and the daily summary when given, to an Excel
// workbook at path.
func WriteXLSX(path string, reports []qc.Report, daily []DailyRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportsSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRows(f, reportsSheet, reportHeader, bold, len(reports), func(i int) []interface{} {
		r := reports[i]
		return []interface{}{
			r.WaveformID.String(),
			r.Parameter,
			r.Value,
			r.Start.UTC(),
			r.End.UTC(),
			r.WindowLength,
			r.Created.UTC(),
			r.CreatorID,
		}
	}); err != nil {
		return err
	}

	if len(daily) > 0 {
		if _, err := f.NewSheet(summarySheet); err != nil {
			return err
		}
		if err := writeRows(f, summarySheet, summaryHeader, bold, len(daily), func(i int) []interface{} {
			d := daily[i]
			return []interface{}{d.Stream, d.Day, d.Windows, d.MeanAvailability, d.MinAvailability, d.Gaps, d.Overlaps}
		}); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, header []interface{}, headerStyle, n int, row func(int) []interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}
