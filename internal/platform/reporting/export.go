package reporting

import (
	"io"

	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/spreadsheet"
)

// WriteWorkbook exports the dashboard and daily series as two sheets.
func WriteWorkbook(w io.Writer, d *Dashboard, daily []DailyPoint) error {
	summary := [][]any{
		{"บุคลากรทั้งหมด", d.TotalStaff},
		{"ผู้ป่วยทั้งหมด", d.TotalPatients},
	}
	for _, p := range process.Ordered {
		summary = append(summary, []any{p.Label(), d.ByProcess[string(p)]})
	}
	for _, b := range process.Buckets {
		summary = append(summary, []any{"กลุ่ม " + string(b), d.ByBucket[b]})
	}

	series := make([][]any, 0, len(daily))
	for _, p := range daily {
		series = append(series, []any{p.Date, p.Pending, p.Received, p.Testing, p.Completed})
	}

	return spreadsheet.Write(w,
		spreadsheet.Sheet{
			Name:    "Summary",
			Headers: []string{"รายการ", "จำนวน"},
			Widths:  []float64{28, 12},
			Rows:    summary,
		},
		spreadsheet.Sheet{
			Name:    "Daily",
			Headers: []string{"วันที่", "pending", "received", "testing", "completed"},
			Widths:  []float64{14, 12, 12, 12, 12},
			Rows:    series,
		},
	)
}
