package auth

// Role is the closed set of principal roles.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// ParseRole maps a stored role name onto the enum; anything unknown
// degrades to RoleUser.
func ParseRole(name string) Role {
	if name == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// Authorize is the per-operation authorization predicate. Admins may do
// everything; users only user-level operations.
func Authorize(role Role, required Role) bool {
	if role == RoleAdmin {
		return true
	}
	return required == RoleUser && role == RoleUser
}
