package patient

import (
	"io"
	"strings"

	"github.com/bloodlink/bloodlink/internal/platform/spreadsheet"
)

var exportHeaders = []string{
	"HN", "ชื่อ", "นามสกุล", "เพศ", "อายุ", "กรุ๊ปเลือด", "โรคประจำตัว", "แพ้ยา",
	"สถานะ", "ขั้นตอน", "วันนัด", "เวลานัด", "ผู้สร้าง", "อัปเดตล่าสุด",
}

// WriteWorkbook exports patients as an xlsx sheet whose first columns match
// the import layout, so an export can be edited and re-imported.
func WriteWorkbook(w io.Writer, patients []*Patient) error {
	rows := make([][]any, 0, len(patients))
	for _, p := range patients {
		appt := ""
		if p.AppointmentDate != nil {
			appt = p.AppointmentDate.Format("2006-01-02")
		}
		rows = append(rows, []any{
			p.HN, p.Name, p.Surname, p.Gender, p.Age, p.BloodType,
			strings.Join(p.Disease, ", "), strings.Join(p.Allergies, ", "),
			statusLabels[p.Status], p.Process.Label(), appt, p.AppointmentTime,
			p.CreatorEmail, p.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	return spreadsheet.Write(w, spreadsheet.Sheet{
		Name:    "Patients",
		Headers: exportHeaders,
		Widths:  []float64{12, 18, 18, 10, 8, 12, 28, 28, 12, 14, 12, 10, 26, 18},
		Rows:    rows,
	})
}
