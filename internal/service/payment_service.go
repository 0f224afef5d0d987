package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/security"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
)

var errSubscriptionNotFound = domain.NewError(domain.ErrNotFound, "Subscription not found")

type CreatePaymentInput struct {
	Amount         float64 `json:"amount" validate:"gt=0" msg:"Amount must be positive"`
	Currency       string  `json:"currency" validate:"omitempty,len=3" msg:"Currency must be a 3-letter code"`
	Description    string  `json:"description"`
	SubscriptionID string  `json:"subscriptionId"`
	InstitutionID  string  `json:"institutionId"`
}

type UpdatePaymentInput struct {
	Amount         *float64 `json:"amount" validate:"omitnil,gt=0" msg:"Amount must be positive"`
	Currency       *string  `json:"currency" validate:"omitnil,len=3" msg:"Currency must be a 3-letter code"`
	Description    *string  `json:"description"`
	SubscriptionID *string  `json:"subscriptionId"`
}

// PaymentService records payments and drives their settlement states.
type PaymentService struct {
	payments      domain.PaymentRepository
	subscriptions domain.SubscriptionRepository
	guard         *Guard
	audit         *audit.Logger
	logger        *slog.Logger
	now           func() time.Time
}

func NewPaymentService(payments domain.PaymentRepository, subscriptions domain.SubscriptionRepository, guard *Guard, auditLog *audit.Logger, logger *slog.Logger) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		payments:      payments,
		subscriptions: subscriptions,
		guard:         guard,
		audit:         auditLog,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *PaymentService) List(ctx context.Context, caller domain.Caller, institutionID string, filter domain.PaymentFilter, page domain.Page) (domain.PageOf[*domain.Payment], error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, institutionID)
	if err != nil {
		return domain.PageOf[*domain.Payment]{}, err
	}
	rows, total, err := s.payments.List(ctx, scope, filter, page)
	if err != nil {
		return domain.PageOf[*domain.Payment]{}, err
	}
	return domain.NewPageOf(rows, page, total), nil
}

func (s *PaymentService) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Payment, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return nil, err
	}
	return s.payments.GetByID(ctx, scope, id)
}

// Create records a PENDING payment. A linked subscription must belong to
// the same institution.
func (s *PaymentService) Create(ctx context.Context, caller domain.Caller, in CreatePaymentInput) (*domain.Payment, error) {
	institutionID, err := s.guard.Owner(caller, security.PermManageBilling, in.InstitutionID)
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	p := &domain.Payment{
		InstitutionID:  institutionID,
		SubscriptionID: strings.TrimSpace(in.SubscriptionID),
		Amount:         in.Amount,
		Currency:       currencyOrDefault(in.Currency),
		Description:    in.Description,
		Status:         domain.PaymentPending,
	}
	if err := s.checkSubscription(ctx, p); err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "payment_created",
		EntityType:    "payment",
		EntityID:      p.ID,
		UserID:        caller.ID,
		InstitutionID: institutionID,
		Details:       map[string]any{"amount": p.Amount, "currency": p.Currency},
	})
	return p, nil
}

func (s *PaymentService) Update(ctx context.Context, caller domain.Caller, id string, in UpdatePaymentInput) (*domain.Payment, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	p, err := s.payments.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if in.Amount != nil {
		p.Amount = *in.Amount
	}
	if in.Currency != nil {
		p.Currency = currencyOrDefault(*in.Currency)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.SubscriptionID != nil {
		p.SubscriptionID = strings.TrimSpace(*in.SubscriptionID)
	}
	if err := s.checkSubscription(ctx, p); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) Delete(ctx context.Context, caller domain.Caller, id string) error {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return err
	}
	if err := s.payments.Delete(ctx, scope, id); err != nil {
		return err
	}
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "payment_deleted",
		EntityType:    "payment",
		EntityID:      id,
		UserID:        caller.ID,
		InstitutionID: scope.InstitutionID,
	})
	return nil
}

// Process settles a PENDING payment and stamps a gateway-style reference.
// A second call on the same payment fails with ErrInvalidState.
func (s *PaymentService) Process(ctx context.Context, caller domain.Caller, id string) (*domain.Payment, error) {
	return s.transition(ctx, caller, id, domain.PaymentPending, domain.PaymentCompleted, s.reference(), "payment_processed")
}

// Refund reverses a COMPLETED payment. Refunds are final.
func (s *PaymentService) Refund(ctx context.Context, caller domain.Caller, id string) (*domain.Payment, error) {
	return s.transition(ctx, caller, id, domain.PaymentCompleted, domain.PaymentRefunded, "", "payment_refunded")
}

func (s *PaymentService) transition(ctx context.Context, caller domain.Caller, id string, from, to domain.PaymentStatus, reference, action string) (*domain.Payment, error) {
	scope, err := s.guard.Scope(caller, security.PermManageBilling, "")
	if err != nil {
		return nil, err
	}
	p, err := s.payments.Transition(ctx, scope, id, from, to, reference)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment status changed",
		slog.String("payment_id", p.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	s.audit.LogAction(ctx, audit.Entry{
		Action:        action,
		EntityType:    "payment",
		EntityID:      p.ID,
		UserID:        caller.ID,
		InstitutionID: p.InstitutionID,
		Details:       map[string]any{"amount": p.Amount, "reference": p.ExternalReference},
	})
	return p, nil
}

func (s *PaymentService) checkSubscription(ctx context.Context, p *domain.Payment) error {
	if p.SubscriptionID == "" {
		return nil
	}
	_, err := s.subscriptions.GetByID(ctx, domain.Scope{InstitutionID: p.InstitutionID}, p.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		return errSubscriptionNotFound
	}
	return err
}

// reference builds a synthetic processor id of the form pi_<unix>_<hex>.
func (s *PaymentService) reference() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return fmt.Sprintf("pi_%d_%s", s.now().Unix(), hex.EncodeToString(b))
}

func currencyOrDefault(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return domain.DefaultCurrency
	}
	return c
}
