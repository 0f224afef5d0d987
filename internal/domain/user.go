package domain

import (
	"context"
	"time"
)

// Role is the authorization role of a login principal
type Role string

const (
	RoleStaff            Role = "STAFF"
	RoleInstitutionAdmin Role = "INSTITUTION_ADMIN"
	RoleSuperAdmin       Role = "SUPER_ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleInstitutionAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// User represents an authentication principal
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	PhoneNumber   string     `json:"phoneNumber,omitempty"`
	InstitutionID string     `json:"institutionId,omitempty"` // empty for SUPER_ADMIN
	IsActive      bool       `json:"isActive"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Caller is the resolved identity of an authenticated request.
type Caller struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	InstitutionID string `json:"institutionId,omitempty"`
}

// UserRepository defines data access for users.
//
// Create must fail with ErrDuplicate when the email is taken and with
// ErrForbidden when a second SUPER_ADMIN would be stored; both are enforced
// atomically by the store rather than by a prior lookup.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	ExistsWithRole(ctx context.Context, role Role) (bool, error)
	CountByInstitution(ctx context.Context, institutionID string) (int, error)
}
