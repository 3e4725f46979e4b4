package spreadsheet

import (
	"bytes"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Sheet{
		Name:    "Patients",
		Headers: []string{"HN", "Name", "Surname", "Disease"},
		Widths:  []float64{12, 20, 20, 30},
		Rows: [][]any{
			{"123456789", "Somying", "Ngernsangdai", "เบาหวาน, ความดัน"},
			{"", "", "", ""},
			{"987654321", "Somchai", "Jaidee", ""},
		},
	}, Sheet{
		Name:    "Summary",
		Headers: []string{"Metric", "Value"},
		Rows:    [][]any{{"total", 2}},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	records, err := ReadRecords(&buf)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 non-blank records, got %d", len(records))
	}
	if records[0].Row != 2 || records[1].Row != 4 {
		t.Errorf("expected sheet rows 2 and 4, got %d and %d", records[0].Row, records[1].Row)
	}
	if records[0].Get("hn") != "123456789" {
		t.Errorf("unexpected HN %q", records[0].Get("hn"))
	}
	if records[0].Get("missing", "NAME") != "Somying" {
		t.Errorf("expected header lookup fallback, got %q", records[0].Get("missing", "NAME"))
	}
	if records[1].Get("disease") != "" {
		t.Errorf("expected empty disease, got %q", records[1].Get("disease"))
	}
}

func TestWrite_NoSheets(t *testing.T) {
	if err := Write(&bytes.Buffer{}); err == nil {
		t.Error("expected error with no sheets")
	}
}

func TestReadRecords_NotAWorkbook(t *testing.T) {
	if _, err := ReadRecords(bytes.NewReader([]byte("hn,name\n1,a"))); err == nil {
		t.Error("expected error for csv input")
	}
}
