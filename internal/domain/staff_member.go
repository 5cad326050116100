package domain

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent   StaffRole = "AGENT"
	StaffRoleSupport StaffRole = "SUPPORT"
	StaffRoleAdmin   StaffRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r StaffRole) Valid() bool {
	switch r {
	case StaffRoleAgent, StaffRoleSupport, StaffRoleAdmin:
		return true
	}
	return false
}
