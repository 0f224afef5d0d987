package domain

import (
	"context"
	"time"
)

// Staff is a payroll subject within an institution. A staff row does not
// need a matching login User.
type Staff struct {
	ID            string     `json:"id"`
	InstitutionID string     `json:"institutionId"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	EmployeeID    string     `json:"employeeId,omitempty"`
	Department    string     `json:"department,omitempty"`
	Position      string     `json:"position,omitempty"`
	Salary        *float64   `json:"salary,omitempty"`
	IsActive      bool       `json:"isActive"`
	JoinedDate    *time.Time `json:"joinedDate,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// StaffFilter narrows staff listings.
type StaffFilter struct {
	Search     string // matches name, email or employee ID, case-insensitive
	Department string
	Active     *bool
}

// StaffRepository defines data access for staff. Create and Update fail
// with ErrDuplicate when the email is held by another row (active or not)
// in the same institution.
type StaffRepository interface {
	Create(ctx context.Context, staff *Staff) error
	GetByID(ctx context.Context, scope Scope, id string) (*Staff, error)
	Update(ctx context.Context, staff *Staff) error
	Deactivate(ctx context.Context, scope Scope, id string) error
	List(ctx context.Context, scope Scope, filter StaffFilter, page Page) ([]*Staff, int, error)
	Departments(ctx context.Context, scope Scope) ([]string, error)
	CountByInstitution(ctx context.Context, institutionID string) (int, error)
}

// ImportResult summarizes a bulk staff import.
type ImportResult struct {
	TotalProcessed int      `json:"totalProcessed"`
	SuccessCount   int      `json:"successCount"`
	ErrorCount     int      `json:"errorCount"`
	Errors         []string `json:"errors,omitempty"`
}
