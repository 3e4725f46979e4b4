// Package labrange holds the reference ranges lab staff compare CBC results
// against.
package labrange

import "time"

// Range is the normal interval for one analyte. Nil bounds are open.
type Range struct {
	TestKey   string     `db:"test_key" json:"test_key"`
	TestName  string     `db:"test_name" json:"test_name"`
	MinValue  *float64   `db:"min_value" json:"min_value"`
	MaxValue  *float64   `db:"max_value" json:"max_value"`
	Unit      string     `db:"unit" json:"unit"`
	UpdatedBy string     `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Update replaces the bounds and unit of one analyte.
type Update struct {
	TestKey  string   `json:"test_key"`
	MinValue *float64 `json:"min_value"`
	MaxValue *float64 `json:"max_value"`
	Unit     string   `json:"unit"`
}

var testNames = map[string]string{
	"wbc":            "White Blood Cell (WBC)",
	"rbc":            "Red Blood Cell (RBC)",
	"hemoglobin":     "Hemoglobin (Hb)",
	"hematocrit":     "Hematocrit (Hct)",
	"mcv":            "MCV",
	"mch":            "MCH",
	"mchc":           "MCHC",
	"platelet":       "Platelet count",
	"neutrophil":     "Neutrophil",
	"lymphocyte":     "Lymphocyte",
	"monocyte":       "Monocyte",
	"eosinophil":     "Eosinophil",
	"basophil":       "Basophil",
	"platelet_smear": "Platelet from smear",
	"nrbc":           "NRBC",
	"rbc_morphology": "RBC morphology",
}

// TestName is the display name for an analyte key.
func TestName(key string) string {
	if n, ok := testNames[key]; ok {
		return n
	}
	return key
}
