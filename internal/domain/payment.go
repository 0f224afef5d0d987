package domain

import (
	"context"
	"time"
)

// PaymentStatus is the settlement state of a payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// DefaultCurrency is applied when a payment names none.
const DefaultCurrency = "NGN"

// Payment is a charge against an institution
type Payment struct {
	ID                string        `json:"id"`
	InstitutionID     string        `json:"institutionId"`
	SubscriptionID    string        `json:"subscriptionId,omitempty"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency"`
	Description       string        `json:"description,omitempty"`
	Status            PaymentStatus `json:"status"`
	ExternalReference string        `json:"externalReference,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	Status         PaymentStatus
	SubscriptionID string
}

// PaymentRepository defines data access for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, scope Scope, id string) (*Payment, error)
	Update(ctx context.Context, payment *Payment) error
	Delete(ctx context.Context, scope Scope, id string) error
	List(ctx context.Context, scope Scope, filter PaymentFilter, page Page) ([]*Payment, int, error)
	// Transition is a conditional status change; it fails with
	// ErrInvalidState when the current status is not from. A non-empty
	// reference is stamped as the external reference.
	Transition(ctx context.Context, scope Scope, id string, from, to PaymentStatus, reference string) (*Payment, error)
}
