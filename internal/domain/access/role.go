package access

import "strings"

// Role is the normalized form of a staff account's free-text role.
type Role int

const (
	RoleUnknown Role = iota
	RoleDoctor
	RoleNurse
	RoleLab
	RoleAdmin
)

// Thai labels as they appear in staff records.
const (
	LabelDoctor = "แพทย์"
	LabelNurse  = "พยาบาล"
	LabelLab    = "เจ้าหน้าที่ห้องปฏิบัติการ"
	LabelAdmin  = "ผู้ดูแล"
)

var roleNames = map[Role]string{
	RoleUnknown: "unknown",
	RoleDoctor:  "doctor",
	RoleNurse:   "nurse",
	RoleLab:     "lab",
	RoleAdmin:   "admin",
}

func (r Role) String() string {
	return roleNames[r]
}

// Label returns the Thai display label, or "" for RoleUnknown.
func (r Role) Label() string {
	switch r {
	case RoleDoctor:
		return LabelDoctor
	case RoleNurse:
		return LabelNurse
	case RoleLab:
		return LabelLab
	case RoleAdmin:
		return LabelAdmin
	}
	return ""
}

// Valid reports whether r takes part in permission decisions.
func (r Role) Valid() bool {
	return r != RoleUnknown
}

// rule order matters: admin first so "ผู้ดูแล (แพทย์)" stays an admin, and
// doctor before nurse before lab.
var rules = []struct {
	role  Role
	thai  string
	latin string
}{
	{RoleAdmin, LabelAdmin, "admin"},
	{RoleDoctor, LabelDoctor, "doctor"},
	{RoleNurse, LabelNurse, "nurse"},
	{RoleLab, LabelLab, "lab"},
}

// NormalizeRole maps a raw role string to a Role by substring inclusion.
// Legacy records carry decorated values such as "แพทย์(จักษุแพทย์)" or
// "Senior Nurse", so exact matching is not used. Latin markers match
// case-insensitively.
//
// Substring matching trades precision for recall: any value containing
// "lab" (for instance "collaborator") classifies as RoleLab.
func NormalizeRole(raw string) Role {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RoleUnknown
	}
	lower := strings.ToLower(s)
	for _, r := range rules {
		if strings.Contains(s, r.thai) || strings.Contains(lower, r.latin) {
			return r.role
		}
	}
	return RoleUnknown
}
