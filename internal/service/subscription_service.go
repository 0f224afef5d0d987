package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/security"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
)

const recentPaymentCount = 5

var errActiveSubscription = domain.NewError(domain.ErrInvalidState, "Institution already has an active subscription")

type CreateSubscriptionInput struct {
	PlanName      string              `json:"planName" validate:"required" msg:"Plan name is required"`
	PlanPrice     float64             `json:"planPrice" validate:"gt=0" msg:"Plan price must be positive"`
	BillingCycle  domain.BillingCycle `json:"billingCycle" validate:"oneof=monthly yearly" msg:"Billing cycle must be monthly or yearly"`
	TrialEndDate  *time.Time          `json:"trialEndDate"`
	InstitutionID string              `json:"institutionId"`
}

type UpdateSubscriptionInput struct {
	PlanName     *string              `json:"planName" validate:"omitnil,min=1" msg:"Plan name is required"`
	PlanPrice    *float64             `json:"planPrice" validate:"omitnil,gt=0" msg:"Plan price must be positive"`
	BillingCycle *domain.BillingCycle `json:"billingCycle" validate:"omitnil,oneof=monthly yearly" msg:"Billing cycle must be monthly or yearly"`
	TrialEndDate *time.Time           `json:"trialEndDate"`
}

// SubscriptionService manages institution plans and their lifecycle.
type SubscriptionService struct {
	subscriptions domain.SubscriptionRepository
	payments      domain.PaymentRepository
	plans         []domain.Plan
	guard         *Guard
	audit         *audit.Logger
	logger        *slog.Logger
	now           func() time.Time
}

func NewSubscriptionService(
	subscriptions domain.SubscriptionRepository,
	payments domain.PaymentRepository,
	plans []domain.Plan,
	guard *Guard,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *SubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		subscriptions: subscriptions,
		payments:      payments,
		plans:         plans,
		guard:         guard,
		audit:         auditLog,
		logger:        logger,
		now:           time.Now,
	}
}

// Plans returns the public plan catalog.
func (s *SubscriptionService) Plans() []domain.Plan {
	if s.plans == nil {
		return []domain.Plan{}
	}
	return s.plans
}

// List returns the caller's subscriptions, newest first, each with its
// most recent payments.
func (s *SubscriptionService) List(ctx context.Context, caller domain.Caller, institutionID string) ([]*domain.Subscription, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, institutionID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subscriptions.List(ctx, scope)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sub := range subs {
		g.Go(func() error {
			return s.attachPayments(gctx, sub, domain.NewPage(1, recentPaymentCount))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}
	return subs, nil
}

// Get returns one subscription with all of its payments.
func (s *SubscriptionService) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Subscription, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachPayments(ctx, sub, domain.NewPage(1, domain.MaxPageSize)); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) attachPayments(ctx context.Context, sub *domain.Subscription, page domain.Page) error {
	payments, _, err := s.payments.List(ctx,
		domain.Scope{InstitutionID: sub.InstitutionID},
		domain.PaymentFilter{SubscriptionID: sub.ID},
		page,
	)
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []*domain.Payment{}
	}
	sub.Payments = payments
	return nil
}

// Create opens a PENDING subscription. An institution with an ACTIVE
// subscription must cancel it first.
func (s *SubscriptionService) Create(ctx context.Context, caller domain.Caller, in CreateSubscriptionInput) (*domain.Subscription, error) {
	institutionID, err := s.guard.Owner(caller, security.PermManageBilling, in.InstitutionID)
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	active, err := s.subscriptions.HasActive(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, errActiveSubscription
	}

	start := s.now()
	sub := &domain.Subscription{
		InstitutionID: institutionID,
		PlanName:      in.PlanName,
		PlanPrice:     in.PlanPrice,
		BillingCycle:  in.BillingCycle,
		Status:        domain.SubscriptionPending,
		StartDate:     &start,
		TrialEndDate:  in.TrialEndDate,
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "subscription_created",
		EntityType:    "subscription",
		EntityID:      sub.ID,
		UserID:        caller.ID,
		InstitutionID: institutionID,
		Details:       map[string]any{"planName": sub.PlanName},
	})
	return sub, nil
}

func (s *SubscriptionService) Update(ctx context.Context, caller domain.Caller, id string, in UpdateSubscriptionInput) (*domain.Subscription, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if in.PlanName != nil {
		sub.PlanName = *in.PlanName
	}
	if in.PlanPrice != nil {
		sub.PlanPrice = *in.PlanPrice
	}
	if in.BillingCycle != nil {
		sub.BillingCycle = *in.BillingCycle
	}
	if in.TrialEndDate != nil {
		sub.TrialEndDate = in.TrialEndDate
	}
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel ends a subscription. Cancelled subscriptions are kept for history.
func (s *SubscriptionService) Cancel(ctx context.Context, caller domain.Caller, id string) (*domain.Subscription, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.Cancel(ctx, scope, id, s.now())
	if err != nil {
		return nil, err
	}
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "subscription_cancelled",
		EntityType:    "subscription",
		EntityID:      sub.ID,
		UserID:        caller.ID,
		InstitutionID: sub.InstitutionID,
	})
	return sub, nil
}

// Activate makes id the institution's ACTIVE subscription, suspending the
// previous one in the same step.
func (s *SubscriptionService) Activate(ctx context.Context, caller domain.Caller, id string) (*domain.Subscription, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.Activate(ctx, scope, id, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription activated",
		slog.String("subscription_id", sub.ID),
		slog.String("institution_id", sub.InstitutionID),
	)
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "subscription_activated",
		EntityType:    "subscription",
		EntityID:      sub.ID,
		UserID:        caller.ID,
		InstitutionID: sub.InstitutionID,
	})
	return sub, nil
}
