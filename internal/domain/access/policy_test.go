package access

import "testing"

var (
	doctor  = "แพทย์"
	nurse   = "Nurse"
	lab     = "เจ้าหน้าที่ห้องปฏิบัติการ"
	admin   = "ผู้ดูแล"
	unknown = "visitor"
)

func TestCanEditPatient_Matrix(t *testing.T) {
	for _, role := range []string{doctor, nurse, lab, admin, unknown, ""} {
		for _, responsible := range []bool{true, false} {
			want := role == admin || ((role == doctor || role == nurse) && responsible)
			if got := CanEditPatient(role, responsible); got != want {
				t.Errorf("CanEditPatient(%q, %v) = %v, want %v", role, responsible, got, want)
			}
			if got := CanManageStaff(role, responsible); got != want {
				t.Errorf("CanManageStaff(%q, %v) = %v, want %v", role, responsible, got, want)
			}
			if got := CanDeletePatient(role, responsible); got != want {
				t.Errorf("CanDeletePatient(%q, %v) = %v, want %v", role, responsible, got, want)
			}
		}
	}
}

func TestStatusVersusAdd(t *testing.T) {
	tests := []struct {
		role       string
		update     bool
		add        bool
		editLab    bool
		bulkAssign bool
	}{
		{doctor, false, true, false, true},
		{nurse, false, true, false, true},
		{lab, true, false, true, false},
		{admin, true, true, true, true},
		{unknown, false, false, false, false},
		{"", false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := CanUpdateStatus(tt.role); got != tt.update {
				t.Errorf("CanUpdateStatus = %v, want %v", got, tt.update)
			}
			if got := CanAddPatient(tt.role); got != tt.add {
				t.Errorf("CanAddPatient = %v, want %v", got, tt.add)
			}
			if got := CanEditLab(tt.role); got != tt.editLab {
				t.Errorf("CanEditLab = %v, want %v", got, tt.editLab)
			}
			if got := CanBulkAssign(tt.role); got != tt.bulkAssign {
				t.Errorf("CanBulkAssign = %v, want %v", got, tt.bulkAssign)
			}
		})
	}
}

func TestFailClosed(t *testing.T) {
	for _, role := range []string{"", " ", "guest", "เภสัชกร", "\t\n"} {
		if IsAdmin(role) || IsDoctorOrNurse(role) || IsLabStaff(role) || IsValidRole(role) {
			t.Errorf("role %q must not classify", role)
		}
		if CanAddPatient(role) || CanEditPatient(role, true) || CanDeletePatient(role, true) ||
			CanManageStaff(role, true) || CanUpdateStatus(role) || CanEditLab(role) || CanBulkAssign(role) {
			t.Errorf("role %q must be denied every capability", role)
		}
	}
}

func TestActor(t *testing.T) {
	a := Actor{Email: "lab@hospital.test", Role: "Lab Staff"}
	if a.Normalized() != RoleLab || a.IsAdmin() {
		t.Errorf("unexpected classification for %+v", a)
	}
	if !System.IsAdmin() {
		t.Error("system actor should classify as admin")
	}
}
