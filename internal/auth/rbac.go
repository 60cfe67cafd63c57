package auth

import "strings"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// NormalizeRole maps unknown or empty values to the unprivileged role.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin
	default:
		return RoleUser
	}
}

// ParseRole is the strict counterpart of NormalizeRole, for input that must
// name a known role.
func ParseRole(role string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin, true
	case string(RoleUser):
		return RoleUser, true
	default:
		return "", false
	}
}
