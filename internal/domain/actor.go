package domain

// Actor role constants.
const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

// Actor is the already-authenticated identity performing an operation. The
// engine never authenticates; it only makes authorization decisions based on
// the role the transport layer verified.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsAdmin reports whether the actor holds the privileged role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
