package staff

import (
	"time"

	"github.com/bloodlink/bloodlink/internal/domain/access"
)

// Account is a staff member. Role is kept exactly as entered; use
// Normalized for decisions.
type Account struct {
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Surname   string    `db:"surname" json:"surname"`
	Role      string    `db:"role" json:"role"`
	Status    string    `db:"status" json:"status"`
	Position  string    `db:"position" json:"position"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Account) Normalized() access.Role {
	return access.NormalizeRole(a.Role)
}

func (a *Account) DisplayName() string {
	if a.Surname == "" {
		return a.Name
	}
	return a.Name + " " + a.Surname
}

// RoleDisplay renders "role(position)" the way dashboards show staff.
func (a *Account) RoleDisplay() string {
	if a.Position == "" {
		return a.Role
	}
	return a.Role + "(" + a.Position + ")"
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDisabled = "disabled"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusApproved: true, StatusDisabled: true,
}

// Update carries the admin-editable fields; nil means unchanged.
type Update struct {
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Position *string `json:"position"`
}
