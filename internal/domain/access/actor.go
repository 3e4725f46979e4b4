package access

// Actor is the authenticated staff member performing an operation.
type Actor struct {
	Email string
	Role  string
}

func (a Actor) Normalized() Role {
	return NormalizeRole(a.Role)
}

func (a Actor) IsAdmin() bool {
	return IsAdmin(a.Role)
}

// System is the sender used for generated notifications.
var System = Actor{Email: "system", Role: "admin"}
