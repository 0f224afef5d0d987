package domain

import (
	"context"
	"time"
)

// Institution is a tenant organization
type Institution struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Address     string    `json:"address,omitempty"`
	Website     string    `json:"website,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// InstitutionCounts summarizes the rows owned by an institution.
type InstitutionCounts struct {
	Users         int `json:"users"`
	Staff         int `json:"staff"`
	Payslips      int `json:"payslips"`
	Subscriptions int `json:"subscriptions,omitempty"`
}

// InstitutionFilter narrows institution listings.
type InstitutionFilter struct {
	Search string
}

// InstitutionRepository defines data access for institutions.
type InstitutionRepository interface {
	// CreateWithAdmin stores the institution and its first admin user in one
	// transaction; either both rows exist afterwards or neither does.
	CreateWithAdmin(ctx context.Context, institution *Institution, admin *User) error
	GetByID(ctx context.Context, id string) (*Institution, error)
	Update(ctx context.Context, institution *Institution) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, filter InstitutionFilter, page Page) ([]*Institution, int, error)
}
