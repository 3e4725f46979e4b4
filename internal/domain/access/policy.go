package access

// The predicates below take the raw role string so call sites never
// classify roles themselves. All of them return false for unknown roles.

func IsAdmin(role string) bool {
	return NormalizeRole(role) == RoleAdmin
}

func IsDoctorOrNurse(role string) bool {
	r := NormalizeRole(role)
	return r == RoleDoctor || r == RoleNurse
}

func IsLabStaff(role string) bool {
	return NormalizeRole(role) == RoleLab
}

func IsValidRole(role string) bool {
	return NormalizeRole(role).Valid()
}

func CanAddPatient(role string) bool {
	return IsAdmin(role) || IsDoctorOrNurse(role)
}

// CanEditPatient covers demographic fields.
func CanEditPatient(role string, isResponsible bool) bool {
	return IsAdmin(role) || (IsDoctorOrNurse(role) && isResponsible)
}

// CanDeletePatient: isOwner is true for the record's creator or any
// responsible staff member.
func CanDeletePatient(role string, isOwner bool) bool {
	return IsAdmin(role) || (IsDoctorOrNurse(role) && isOwner)
}

func CanManageStaff(role string, isResponsible bool) bool {
	return IsAdmin(role) || (IsDoctorOrNurse(role) && isResponsible)
}

func CanUpdateStatus(role string) bool {
	return IsAdmin(role) || IsLabStaff(role)
}

func CanEditLab(role string) bool {
	return IsAdmin(role) || IsLabStaff(role)
}

func CanBulkAssign(role string) bool {
	return IsAdmin(role) || IsDoctorOrNurse(role)
}
