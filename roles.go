package identity

// Role is the marketplace role a profile was registered under. A defined
// type, not an alias, so arbitrary strings do not assign to it.
type Role string

const (
	// RolePublic is a general user dropping off e-waste; activated immediately.
	RolePublic Role = "PUBLIC"
	// RoleCollector picks up e-waste; requires administrative approval.
	RoleCollector Role = "COLLECTOR"
	// RoleRecyclingCenter processes e-waste; requires administrative approval.
	RoleRecyclingCenter Role = "RECYCLING_CENTER"
	// RoleAdmin is provisioned out of band, never through self-registration.
	RoleAdmin Role = "ADMIN"
)

// ParseRole validates a stored or submitted role value.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePublic, RoleCollector, RoleRecyclingCenter, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// IsValidRole reports whether s is one of the closed set of roles.
func IsValidRole(s string) bool {
	_, ok := ParseRole(s)
	return ok
}

// RequiresApproval reports whether registrations under r are queued for
// administrative activation instead of being activated immediately.
func RequiresApproval(r Role) bool {
	return r == RoleCollector || r == RoleRecyclingCenter
}

// SelfRegistrable reports whether r may be requested through the public
// registration workflow.
func SelfRegistrable(r Role) bool {
	switch r {
	case RolePublic, RoleCollector, RoleRecyclingCenter:
		return true
	default:
		return false
	}
}
