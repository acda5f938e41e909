package domain

import (
	"strings"
	"time"
)

// Role is the authorization role carried by every account.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole validates a role string.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleModerator:
		return RoleModerator, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// CanViewAllTickets reports whether the role sees tickets it did not create.
func (r Role) CanViewAllTickets() bool {
	return r == RoleModerator || r == RoleAdmin
}

// User is the domain model for every account. Skills only matter for moderators.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Skills       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
