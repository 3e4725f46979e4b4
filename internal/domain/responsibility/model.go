package responsibility

import "time"

// Assignment is one staff member's accountability for one patient, with
// the staff account details joined in for display.
type Assignment struct {
	HN         string    `db:"hn" json:"hn"`
	StaffEmail string    `db:"staff_email" json:"staff_email"`
	AssignedBy string    `db:"assigned_by" json:"assigned_by"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`

	Name     string `db:"name" json:"name"`
	Surname  string `db:"surname" json:"surname"`
	Role     string `db:"role" json:"role"`
	Position string `db:"position" json:"position,omitempty"`
}

// ItemError explains why one HN in a bulk request failed.
type ItemError struct {
	HN      string `json:"hn"`
	Message string `json:"message"`
}

// BulkResult reports partial success; Success+Failed equals the number of
// HNs submitted.
type BulkResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []ItemError `json:"errors"`
}
