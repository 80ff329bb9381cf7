package domain

import "github.com/google/uuid"

// Role is the capability class the auth layer assigned to a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMerchant Role = "merchant"
	RoleUser     Role = "user"
)

// Caller is an already-authenticated identity handed to the core by the auth layer.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanActFor reports whether the caller owns the resource or is an admin.
func (c Caller) CanActFor(owner uuid.UUID) bool {
	return c.IsAdmin() || c.UserID == owner
}
