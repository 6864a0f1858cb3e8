package domain

// Role constants define the allowed account roles.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// authorityPrefix is prepended to a role to form its granted authority.
const authorityPrefix = "ROLE_"

// ValidRoles returns the set of valid account roles.
func ValidRoles() []string {
	return []string{RoleUser, RoleAdmin}
}

// IsValidRole checks whether the given role string is a valid account role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// AuthoritiesFor maps a role to its granted authorities. Unknown roles
// grant nothing.
func AuthoritiesFor(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{authorityPrefix + RoleAdmin, authorityPrefix + RoleUser}
	case RoleUser:
		return []string{authorityPrefix + RoleUser}
	default:
		return []string{}
	}
}
