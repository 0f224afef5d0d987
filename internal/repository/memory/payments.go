package memory

import (
	"context"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// PaymentRepository implements domain.PaymentRepository in memory
type PaymentRepository struct{ s *Store }

var errPaymentNotFound = domain.NewError(domain.ErrNotFound, "Payment not found")

func (r *PaymentRepository) Create(_ context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	p.ID = newID()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.payments.insert(p.ID, clone(p))
	return nil
}

func (r *PaymentRepository) getLocked(scope domain.Scope, id string) (*domain.Payment, error) {
	p, ok := r.s.payments.get(id)
	if !ok || !scope.Allows(p.InstitutionID) {
		return nil, errPaymentNotFound
	}
	return p, nil
}

func (r *PaymentRepository) GetByID(_ context.Context, scope domain.Scope, id string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (r *PaymentRepository) Update(_ context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, err := r.getLocked(domain.Scope{InstitutionID: p.InstitutionID}, p.ID)
	if err != nil {
		return err
	}
	existing.SubscriptionID = p.SubscriptionID
	existing.Amount = p.Amount
	existing.Currency = p.Currency
	existing.Description = p.Description
	existing.UpdatedAt = r.s.now()
	*p = *existing
	return nil
}

func (r *PaymentRepository) Delete(_ context.Context, scope domain.Scope, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.getLocked(scope, id); err != nil {
		return err
	}
	r.s.payments.remove(id)
	return nil
}

func (r *PaymentRepository) List(_ context.Context, scope domain.Scope, filter domain.PaymentFilter, page domain.Page) ([]*domain.Payment, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := r.s.payments.newestFirst(func(p *domain.Payment) bool {
		return scope.Allows(p.InstitutionID) &&
			(filter.Status == "" || p.Status == filter.Status) &&
			(filter.SubscriptionID == "" || p.SubscriptionID == filter.SubscriptionID)
	})
	return paginate(rows, page), len(rows), nil
}

func (r *PaymentRepository) Transition(_ context.Context, scope domain.Scope, id string, from, to domain.PaymentStatus, reference string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	if p.Status != from {
		if from == domain.PaymentCompleted {
			return nil, domain.NewError(domain.ErrInvalidState, "Only completed payments can be refunded")
		}
		return nil, domain.NewError(domain.ErrInvalidState, "Payment is not pending")
	}
	p.Status = to
	if reference != "" {
		p.ExternalReference = reference
	}
	p.UpdatedAt = r.s.now()
	return clone(p), nil
}
