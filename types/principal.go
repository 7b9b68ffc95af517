package types

import "github.com/google/uuid"

// Principal is the authenticated identity of the current request. The HTTP
// middleware builds it from the bearer token and every use case receives it
// explicitly; there is no process-wide authenticated state.
//
// The zero value is the anonymous principal.
type Principal struct {
	ProfileID uuid.UUID
	Username  string
	Roles     []Role
}

// Anonymous reports whether no authenticated identity is attached.
func (p Principal) Anonymous() bool {
	return p.ProfileID == uuid.Nil
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal carries ROLE_ADMIN.
func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}
