package domain

import "strings"

// Role enumerates the account roles known to the platform.
type Role string

const (
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
	RoleCoAdmin Role = "COADMIN"
)

// AdminRoles are the roles accepted on the admin login surface.
var AdminRoles = []Role{RoleAdmin, RoleCoAdmin}

// UserRoles are the roles accepted on the user login surface.
var UserRoles = []Role{RoleUser}

// ParseRole converts a stored role value into a Role.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleCoAdmin:
		return RoleCoAdmin, true
	default:
		return "", false
	}
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// IsAdministrative reports whether the role may use the admin surface.
func (r Role) IsAdministrative() bool {
	return r.In(AdminRoles...)
}

// Authorize is the authorization predicate evaluated at the entry of protected operations.
// A nil claim is never authorized; an empty role list only requires authentication.
func Authorize(claim *SessionClaim, required ...Role) bool {
	if claim == nil || claim.ID == "" {
		return false
	}
	if len(required) == 0 {
		return true
	}
	return claim.Role.In(required...)
}

// RoleStrings renders roles for logging and metrics labels.
func RoleStrings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}
