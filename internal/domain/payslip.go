package domain

import (
	"context"
	"time"
)

// PayslipStatus is the processing state of a payslip document
type PayslipStatus string

const (
	PayslipProcessing PayslipStatus = "PROCESSING"
	PayslipAvailable  PayslipStatus = "AVAILABLE"
	PayslipFailed     PayslipStatus = "FAILED"
)

// Valid reports whether s is a known payslip status.
func (s PayslipStatus) Valid() bool {
	switch s {
	case PayslipProcessing, PayslipAvailable, PayslipFailed:
		return true
	}
	return false
}

// Payslip is one pay period's statement. StaffID names the payroll subject,
// UserID the optional login that may read it; at least one is set.
type Payslip struct {
	ID            string        `json:"id"`
	InstitutionID string        `json:"institutionId"`
	StaffID       string        `json:"staffId,omitempty"`
	UserID        string        `json:"userId,omitempty"`
	Month         string        `json:"month"`
	Year          int           `json:"year"`
	GrossPay      float64       `json:"grossPay"`
	NetPay        float64       `json:"netPay"`
	Deductions    *float64      `json:"deductions,omitempty"`
	Allowances    *float64      `json:"allowances,omitempty"`
	Status        PayslipStatus `json:"status"`
	FilePath      string        `json:"filePath,omitempty"`
	FileName      string        `json:"fileName,omitempty"`
	UploadDate    time.Time     `json:"uploadDate"`
	ProcessedAt   *time.Time    `json:"processedAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// PayslipFilter narrows payslip listings. UserID restricts results to one
// login's payslips (STAFF callers).
type PayslipFilter struct {
	Month   string
	Year    int
	Status  PayslipStatus
	StaffID string
	UserID  string
}

// PayslipRepository defines data access for payslips. Create and Update
// fail with ErrDuplicate when another payslip holds the same
// (institution, staff, month, year).
type PayslipRepository interface {
	Create(ctx context.Context, payslip *Payslip) error
	GetByID(ctx context.Context, scope Scope, id string) (*Payslip, error)
	Update(ctx context.Context, payslip *Payslip) error
	Delete(ctx context.Context, scope Scope, id string) error
	List(ctx context.Context, scope Scope, filter PayslipFilter, page Page) ([]*Payslip, int, error)
	// AttachFile records an uploaded document and resets the status to PROCESSING.
	AttachFile(ctx context.Context, scope Scope, id, filePath, fileName string, at time.Time) (*Payslip, error)
	// Transition moves a payslip from one status to another and fails with
	// ErrInvalidState when the current status is not from.
	Transition(ctx context.Context, id string, from, to PayslipStatus, at time.Time) (*Payslip, error)
	// FinishProcessing moves a PROCESSING payslip to `to` only while filePath
	// is still its attached document. A re-upload in between makes it fail
	// with ErrInvalidState.
	FinishProcessing(ctx context.Context, id, filePath string, to PayslipStatus, at time.Time) (*Payslip, error)
	// ListStale returns PROCESSING payslips with a file uploaded before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*Payslip, error)
	CountByInstitution(ctx context.Context, institutionID string) (int, error)
}

// PayslipJob asks a worker to process an uploaded payslip document.
type PayslipJob struct {
	PayslipID     string    `json:"payslipId"`
	InstitutionID string    `json:"institutionId"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}

// PayslipStatusEvent announces a payslip status change.
type PayslipStatusEvent struct {
	PayslipID     string        `json:"id"`
	InstitutionID string        `json:"institutionId"`
	UserID        string        `json:"userId,omitempty"`
	Status        PayslipStatus `json:"status"`
	ProcessedAt   *time.Time    `json:"processedAt,omitempty"`
}

// JobQueue carries payslip jobs from the API to the workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job PayslipJob) error
	// Dequeue blocks up to timeout and returns nil when no job arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*PayslipJob, error)
}

// StatusBroadcaster fans payslip status events out to subscribers.
type StatusBroadcaster interface {
	Publish(ctx context.Context, event PayslipStatusEvent) error
	// Subscribe returns a stream of events and a function releasing it.
	Subscribe(ctx context.Context) (<-chan PayslipStatusEvent, func(), error)
}
