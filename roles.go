package accounts

// Role is the account role
type Role string

const (
	// RoleUser is the default role of self registered accounts
	RoleUser Role = "user"
	// RoleAdmin can manage other accounts
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// In reports whether the role belongs to the allowed set. An empty set
// allows any role.
func (r Role) In(allowed ...Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
