package model

import "strings"

// Role is the privilege level of a user.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleStaff   Role = "STAFF"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole converts s into a Role, defaulting to RoleStudent for
// unknown or empty values.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleStaff:
		return RoleStaff
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleStudent
	}
}

// User mirrors a row of the users table.  Users are created lazily the
// first time a username reserves a seat.
type User struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
