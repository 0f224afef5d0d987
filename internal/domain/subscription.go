package domain

import (
	"context"
	"time"
)

// SubscriptionStatus is the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// BillingCycle is how often a subscription is charged
type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

// Subscription is an institution's plan
type Subscription struct {
	ID            string             `json:"id"`
	InstitutionID string             `json:"institutionId"`
	PlanName      string             `json:"planName"`
	PlanPrice     float64            `json:"planPrice"`
	BillingCycle  BillingCycle       `json:"billingCycle"`
	Status        SubscriptionStatus `json:"status"`
	StartDate     *time.Time         `json:"startDate,omitempty"`
	EndDate       *time.Time         `json:"endDate,omitempty"`
	TrialEndDate  *time.Time         `json:"trialEndDate,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Payments      []*Payment         `json:"payments,omitempty"`
}

// SubscriptionRepository defines data access for subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, scope Scope, id string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	List(ctx context.Context, scope Scope) ([]*Subscription, error)
	HasActive(ctx context.Context, institutionID string) (bool, error)
	// Cancel marks the subscription CANCELLED with endDate=at.
	Cancel(ctx context.Context, scope Scope, id string, at time.Time) (*Subscription, error)
	// Activate suspends any other ACTIVE subscription of the same institution
	// and activates id, as one atomic step. It fails with ErrInvalidState
	// when id is already ACTIVE.
	Activate(ctx context.Context, scope Scope, id string, at time.Time) (*Subscription, error)
	CountByInstitution(ctx context.Context, institutionID string) (int, error)
}

// Plan is an entry of the public plan catalog
type Plan struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Price        float64      `json:"price" yaml:"price"`
	BillingCycle BillingCycle `json:"billingCycle" yaml:"billingCycle"`
	Features     []string     `json:"features" yaml:"features"`
}
