package patient

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/platform/spreadsheet"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// ImportRow is one patient from a bulk upload. Row is the spreadsheet row
// number (data starts at 2) and is echoed back in errors.
type ImportRow struct {
	Row       int    `json:"row"`
	HN        string `json:"hn"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Gender    string `json:"gender"`
	Age       string `json:"age"`
	BloodType string `json:"blood_type"`
	Disease   string `json:"disease"`
	Allergy   string `json:"allergy"`
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

// Column headers accepted in uploaded workbooks, English or Thai.
var importHeaders = map[string][]string{
	"hn":         {"hn"},
	"name":       {"name", "ชื่อ"},
	"surname":    {"surname", "นามสกุล"},
	"gender":     {"gender", "เพศ"},
	"age":        {"age", "อายุ"},
	"blood_type": {"blood_type", "bloodtype", "blood type", "กรุ๊ปเลือด", "หมู่เลือด"},
	"disease":    {"disease", "โรคประจำตัว"},
	"allergy":    {"allergy", "allergies", "แพ้ยา", "ประวัติแพ้ยา"},
}

// ParseWorkbook reads import rows from the first sheet of an xlsx file.
func ParseWorkbook(r io.Reader) ([]ImportRow, error) {
	records, err := spreadsheet.ReadRecords(r)
	if err != nil {
		return nil, apperr.InvalidState("invalid_workbook", "cannot read workbook: %v", err)
	}
	rows := make([]ImportRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ImportRow{
			Row:       rec.Row,
			HN:        rec.Get(importHeaders["hn"]...),
			Name:      rec.Get(importHeaders["name"]...),
			Surname:   rec.Get(importHeaders["surname"]...),
			Gender:    rec.Get(importHeaders["gender"]...),
			Age:       rec.Get(importHeaders["age"]...),
			BloodType: rec.Get(importHeaders["blood_type"]...),
			Disease:   rec.Get(importHeaders["disease"]...),
			Allergy:   rec.Get(importHeaders["allergy"]...),
		})
	}
	return rows, nil
}

// Import registers each row independently; a bad row is reported and the
// rest still go through.
func (s *Service) Import(ctx context.Context, rows []ImportRow, actor access.Actor) (*ImportResult, error) {
	if !access.CanAddPatient(actor.Role) {
		return nil, apperr.Forbidden("add_patient_denied", "role %q cannot register patients", actor.Role)
	}
	if len(rows) == 0 {
		return nil, apperr.InvalidState("no_patients", "no patients provided")
	}

	res := &ImportResult{Errors: []RowError{}}
	fail := func(row int, msg string) {
		res.Failed++
		res.Errors = append(res.Errors, RowError{Row: row, Message: msg})
	}

	for i, in := range rows {
		row := in.Row
		if row == 0 {
			row = i + 2
		}
		hn := strings.TrimSpace(in.HN)
		if hn == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Surname) == "" {
			fail(row, "HN, ชื่อ หรือนามสกุลไม่ครบ")
			continue
		}
		if err := ValidateHN(hn); err != nil {
			fail(row, fmt.Sprintf("HN %s ต้องเป็นตัวเลข 9 หลัก", hn))
			continue
		}
		age, _ := strconv.Atoi(strings.TrimSpace(in.Age))
		if age < 0 {
			age = 0
		}

		p := &Patient{
			HN:        hn,
			Name:      strings.TrimSpace(in.Name),
			Surname:   strings.TrimSpace(in.Surname),
			Gender:    strings.TrimSpace(in.Gender),
			Age:       age,
			BloodType: strings.TrimSpace(in.BloodType),
			Disease:   SplitList(in.Disease),
			Allergies: SplitList(in.Allergy),
		}
		p.applyDefaults()
		p.CreatorEmail = actor.Email

		if err := s.patients.Create(ctx, p); err != nil {
			var msg string
			if apperr.IsKind(err, apperr.KindConflict) {
				msg = fmt.Sprintf("HN %s มีในระบบแล้ว", hn)
			} else {
				s.logger.Error().Err(err).Str("hn", hn).Int("row", row).Msg("bulk import insert failed")
				msg = "database error"
			}
			fail(row, msg)
			continue
		}
		res.Success++
	}

	if res.Success > 0 {
		s.InvalidateList(ctx)
	}
	return res, nil
}
