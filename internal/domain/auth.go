package domain

// SubjectType differentiates staff tokens from merchant API keys.
type SubjectType string

const (
	SubjectTypeStaff    SubjectType = "STAFF"
	SubjectTypeMerchant SubjectType = "MERCHANT"
	SubjectTypeSystem   SubjectType = "SYSTEM"
)

// SystemActorID is recorded as the actor of transitions made by
// background jobs.
const SystemActorID = "system"

// Principal is the authenticated caller of a ticket operation.
type Principal struct {
	Type       SubjectType
	ID         string
	Role       StaffRole
	MerchantID string
}

// SystemPrincipal acts for background jobs.
var SystemPrincipal = Principal{Type: SubjectTypeSystem, ID: SystemActorID}

// IsStaff reports whether p is an authenticated staff member.
func (p Principal) IsStaff() bool { return p.Type == SubjectTypeStaff }

// HasRole reports whether p is staff holding one of roles, or the system.
func (p Principal) HasRole(roles ...StaffRole) bool {
	if p.Type == SubjectTypeSystem {
		return true
	}
	if p.Type != SubjectTypeStaff {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// CanAccessMerchant reports whether p may see tickets of merchantID.
func (p Principal) CanAccessMerchant(merchantID string) bool {
	if p.Type == SubjectTypeMerchant {
		return p.MerchantID == merchantID
	}
	return p.Type == SubjectTypeStaff || p.Type == SubjectTypeSystem
}
