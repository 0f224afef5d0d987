package memory

import (
	"context"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// SubscriptionRepository implements domain.SubscriptionRepository in memory
type SubscriptionRepository struct{ s *Store }

var (
	errSubscriptionNotFound = domain.NewError(domain.ErrNotFound, "Subscription not found")
	errAlreadyActive        = domain.NewError(domain.ErrInvalidState, "Subscription is already active")
	errInstitutionActive    = domain.NewError(domain.ErrInvalidState, "Institution already has an active subscription")
)

func (r *SubscriptionRepository) hasActiveLocked(institutionID string) bool {
	for _, sub := range r.s.subscriptions.rows {
		if sub.InstitutionID == institutionID && sub.Status == domain.SubscriptionActive {
			return true
		}
	}
	return false
}

func (r *SubscriptionRepository) Create(_ context.Context, sub *domain.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub.Status == domain.SubscriptionActive && r.hasActiveLocked(sub.InstitutionID) {
		return errInstitutionActive
	}
	now := r.s.now()
	sub.ID = newID()
	sub.CreatedAt, sub.UpdatedAt = now, now
	stored := clone(sub)
	stored.Payments = nil
	r.s.subscriptions.insert(sub.ID, stored)
	return nil
}

func (r *SubscriptionRepository) getLocked(scope domain.Scope, id string) (*domain.Subscription, error) {
	sub, ok := r.s.subscriptions.get(id)
	if !ok || !scope.Allows(sub.InstitutionID) {
		return nil, errSubscriptionNotFound
	}
	return sub, nil
}

func (r *SubscriptionRepository) GetByID(_ context.Context, scope domain.Scope, id string) (*domain.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sub, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	return clone(sub), nil
}

func (r *SubscriptionRepository) Update(_ context.Context, sub *domain.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, err := r.getLocked(domain.Scope{InstitutionID: sub.InstitutionID}, sub.ID)
	if err != nil {
		return err
	}
	existing.PlanName = sub.PlanName
	existing.PlanPrice = sub.PlanPrice
	existing.BillingCycle = sub.BillingCycle
	existing.TrialEndDate = sub.TrialEndDate
	existing.UpdatedAt = r.s.now()
	*sub = *existing
	return nil
}

func (r *SubscriptionRepository) List(_ context.Context, scope domain.Scope) ([]*domain.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneAll(r.s.subscriptions.newestFirst(func(sub *domain.Subscription) bool {
		return scope.Allows(sub.InstitutionID)
	})), nil
}

func (r *SubscriptionRepository) HasActive(_ context.Context, institutionID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.hasActiveLocked(institutionID), nil
}

func (r *SubscriptionRepository) Cancel(_ context.Context, scope domain.Scope, id string, at time.Time) (*domain.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionCancelled
	sub.EndDate = &at
	sub.UpdatedAt = r.s.now()
	return clone(sub), nil
}

// Activate suspends and activates under the store lock, so no reader ever
// observes two ACTIVE subscriptions for one institution.
func (r *SubscriptionRepository) Activate(_ context.Context, scope domain.Scope, id string, at time.Time) (*domain.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	target, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	if target.Status == domain.SubscriptionActive {
		return nil, errAlreadyActive
	}

	now := r.s.now()
	for _, sub := range r.s.subscriptions.rows {
		if sub.ID != id && sub.InstitutionID == target.InstitutionID && sub.Status == domain.SubscriptionActive {
			end := at
			sub.Status = domain.SubscriptionSuspended
			sub.EndDate = &end
			sub.UpdatedAt = now
		}
	}

	start := at
	target.Status = domain.SubscriptionActive
	target.StartDate = &start
	target.EndDate = nil
	target.UpdatedAt = now
	return clone(target), nil
}

func (r *SubscriptionRepository) CountByInstitution(_ context.Context, institutionID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.subscriptions.newestFirst(func(sub *domain.Subscription) bool {
		return sub.InstitutionID == institutionID
	})), nil
}
