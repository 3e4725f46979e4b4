package patient

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var statusLabels = map[string]string{
	StatusActive:   "ใช้งาน",
	StatusInactive: "ไม่ใช้งาน",
}

// ParseStatus accepts the canonical value or the Thai label.
func ParseStatus(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	for k, label := range statusLabels {
		if s == k || s == label || strings.EqualFold(s, k) {
			return k, true
		}
	}
	return "", false
}

const unspecified = "ไม่ระบุ"

var hnPattern = regexp.MustCompile(`^[0-9]{9}$`)

// ValidateHN checks the 9-digit hospital number format.
func ValidateHN(hn string) error {
	if !hnPattern.MatchString(hn) {
		return apperr.InvalidState("invalid_hn", "HN must be exactly 9 digits, got %q", hn)
	}
	return nil
}

type Patient struct {
	HN              string          `db:"hn" json:"hn"`
	Name            string          `db:"name" json:"name"`
	Surname         string          `db:"surname" json:"surname"`
	Gender          string          `db:"gender" json:"gender"`
	Age             int             `db:"age" json:"age"`
	BloodType       string          `db:"blood_type" json:"blood_type"`
	Disease         []string        `db:"disease" json:"disease"`
	Allergies       []string        `db:"allergies" json:"allergies"`
	Medication      string          `db:"medication" json:"medication"`
	LatestReceipt   string          `db:"latest_receipt" json:"latest_receipt"`
	TestType        string          `db:"test_type" json:"test_type"`
	Status          string          `db:"status" json:"status"`
	Process         process.Process `db:"process" json:"process"`
	AppointmentDate *time.Time      `db:"appointment_date" json:"appointment_date,omitempty"`
	AppointmentTime string          `db:"appointment_time" json:"appointment_time,omitempty"`
	CreatorEmail    string          `db:"creator_email" json:"creator_email"`
	Version         int             `db:"version" json:"version"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	// Filled on single-record reads; not a column.
	ResponsibleEmails []string `json:"responsible_emails,omitempty"`
}

func (p *Patient) DisplayName() string {
	return strings.TrimSpace(p.Name + " " + p.Surname)
}

func (p *Patient) Bucket() process.Bucket {
	return process.Classify(string(p.Process))
}

// applyDefaults fills the values a freshly registered patient starts with.
func (p *Patient) applyDefaults() {
	if p.Gender == "" {
		p.Gender = unspecified
	}
	if p.BloodType == "" {
		p.BloodType = unspecified
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.Process == "" {
		p.Process = process.Scheduled
	}
	if p.Disease == nil {
		p.Disease = []string{}
	}
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	p.Version = 1
}

// Update carries the demographic fields staff may edit. Nil means unchanged.
type Update struct {
	Name          *string   `json:"name"`
	Surname       *string   `json:"surname"`
	Gender        *string   `json:"gender"`
	Age           *int      `json:"age"`
	BloodType     *string   `json:"blood_type"`
	Disease       *[]string `json:"disease"`
	Allergies     *[]string `json:"allergies"`
	Medication    *string   `json:"medication"`
	LatestReceipt *string   `json:"latest_receipt"`
	TestType      *string   `json:"test_type"`
	Status        *string   `json:"status"`
}

func (u Update) apply(p *Patient) error {
	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return apperr.InvalidState("name_required", "name must not be empty")
		}
		p.Name = strings.TrimSpace(*u.Name)
	}
	if u.Surname != nil {
		if strings.TrimSpace(*u.Surname) == "" {
			return apperr.InvalidState("surname_required", "surname must not be empty")
		}
		p.Surname = strings.TrimSpace(*u.Surname)
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.Age != nil {
		if *u.Age < 0 || *u.Age > 150 {
			return apperr.InvalidState("invalid_age", "age %d is out of range", *u.Age)
		}
		p.Age = *u.Age
	}
	if u.BloodType != nil {
		p.BloodType = *u.BloodType
	}
	if u.Disease != nil {
		p.Disease = cleanList(*u.Disease)
	}
	if u.Allergies != nil {
		p.Allergies = cleanList(*u.Allergies)
	}
	if u.Medication != nil {
		p.Medication = *u.Medication
	}
	if u.LatestReceipt != nil {
		p.LatestReceipt = *u.LatestReceipt
	}
	if u.TestType != nil {
		p.TestType = *u.TestType
	}
	if u.Status != nil {
		st, ok := ParseStatus(*u.Status)
		if !ok {
			return apperr.InvalidState("invalid_status", "invalid status: %s", *u.Status)
		}
		p.Status = st
	}
	return nil
}

// SplitList turns "a, b,,c" into [a b c].
func SplitList(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(items []string) []string {
	out := []string{}
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" && s != "-" {
			out = append(out, s)
		}
	}
	return out
}

// Filter narrows patient listings. Empty fields are ignored.
type Filter struct {
	Process process.Process
	Bucket  process.Bucket
	Status  string
	Search  string
	// ResponsibleEmail limits to patients this staff member is responsible for.
	ResponsibleEmail string
}

func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Analytes recorded on a complete blood count.
var Analytes = []string{
	"wbc", "rbc", "hemoglobin", "hematocrit", "mcv", "mch", "mchc", "platelet",
	"neutrophil", "lymphocyte", "monocyte", "eosinophil", "basophil",
	"platelet_smear", "nrbc", "rbc_morphology",
}

var analyteSet = func() map[string]bool {
	m := make(map[string]bool, len(Analytes))
	for _, a := range Analytes {
		m[a] = true
	}
	return m
}()

// Result is one analyte measurement with an optional comment.
type Result struct {
	Value string `json:"value"`
	Note  string `json:"note,omitempty"`
}

// LabTest is one visit's blood test. Records are appended, never replaced,
// so a patient's history is the list of records by creation time.
type LabTest struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	HN         string            `db:"hn" json:"hn"`
	Results    map[string]Result `db:"results" json:"results"`
	Note       string            `db:"note" json:"note"`
	RecordedBy string            `db:"recorded_by" json:"recorded_by"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
}

// ValidateResults rejects analytes outside the CBC panel.
func ValidateResults(results map[string]Result) error {
	for k := range results {
		if !analyteSet[k] {
			return apperr.InvalidState("unknown_analyte", "unknown analyte %q", k)
		}
	}
	return nil
}

// Event is one entry in a patient's process timeline.
type Event struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	HN         string          `db:"hn" json:"hn"`
	From       process.Process `db:"from_process" json:"from"`
	To         process.Process `db:"to_process" json:"to"`
	ActorEmail string          `db:"actor_email" json:"actor_email"`
	Note       string          `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
