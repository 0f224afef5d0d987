package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

func TestActivateSuspendsPreviousSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.signup(t, "Acme", "admin@acme.test")

	in := CreateSubscriptionInput{PlanName: "Basic", PlanPrice: 29000, BillingCycle: domain.BillingMonthly}
	a, err := env.subscriptions.Create(ctx, admin, in)
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	in.PlanName = "Professional"
	b, err := env.subscriptions.Create(ctx, admin, in)
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.Status != domain.SubscriptionPending {
		t.Fatalf("expected PENDING, got %s", a.Status)
	}

	if _, err := env.subscriptions.Activate(ctx, admin, a.ID); err != nil {
		t.Fatalf("activate a: %v", err)
	}
	if _, err := env.subscriptions.Activate(ctx, admin, a.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state re-activating, got %v", err)
	}
	if _, err := env.subscriptions.Create(ctx, admin, in); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected create to fail while one is active, got %v", err)
	}

	activated, err := env.subscriptions.Activate(ctx, admin, b.ID)
	if err != nil {
		t.Fatalf("activate b: %v", err)
	}
	if activated.Status != domain.SubscriptionActive || activated.EndDate != nil {
		t.Fatalf("unexpected b after activation %+v", activated)
	}

	a, err = env.subscriptions.Get(ctx, admin, a.ID)
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if a.Status != domain.SubscriptionSuspended || a.EndDate == nil {
		t.Fatalf("expected a suspended with end date, got %s", a.Status)
	}

	subs, err := env.subscriptions.List(ctx, admin, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	active := 0
	for _, s := range subs {
		if s.Status == domain.SubscriptionActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active subscription, got %d", active)
	}
}

func TestSubscriptionValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Acme", "admin@acme.test")

	_, err := env.subscriptions.Create(context.Background(), admin, CreateSubscriptionInput{
		PlanName: "Basic", PlanPrice: 10, BillingCycle: "weekly",
	})
	if domain.Message(err) != "Billing cycle must be monthly or yearly" {
		t.Fatalf("unexpected message %q", domain.Message(err))
	}
}

func TestProcessPaymentTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.signup(t, "Acme", "admin@acme.test")

	p, err := env.payments.Create(ctx, admin, CreatePaymentInput{Amount: 29000})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if p.Currency != domain.DefaultCurrency || p.Status != domain.PaymentPending {
		t.Fatalf("unexpected payment %+v", p)
	}

	if _, err := env.payments.Refund(ctx, admin, p.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected refund of pending payment to fail, got %v", err)
	}

	processed, err := env.payments.Process(ctx, admin, p.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != domain.PaymentCompleted || !strings.HasPrefix(processed.ExternalReference, "pi_") {
		t.Fatalf("unexpected processed payment %+v", processed)
	}

	_, err = env.payments.Process(ctx, admin, p.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on second process, got %v", err)
	}
	if domain.Message(err) != "Payment is not pending" {
		t.Fatalf("unexpected message %q", domain.Message(err))
	}

	refunded, err := env.payments.Refund(ctx, admin, p.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.PaymentRefunded {
		t.Fatalf("expected REFUNDED, got %s", refunded.Status)
	}
	if _, err := env.payments.Refund(ctx, admin, p.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected second refund to fail, got %v", err)
	}
}

func TestPaymentSubscriptionMustBeInTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.signup(t, "Acme", "admin@acme.test")
	other := env.signup(t, "Other", "admin@other.test")

	sub, err := env.subscriptions.Create(ctx, acme, CreateSubscriptionInput{PlanName: "Basic", PlanPrice: 29000, BillingCycle: domain.BillingMonthly})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if _, err := env.payments.Create(ctx, other, CreatePaymentInput{Amount: 100, SubscriptionID: sub.ID}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	p, err := env.payments.Create(ctx, acme, CreatePaymentInput{Amount: 100, SubscriptionID: sub.ID, Currency: "usd"})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if p.Currency != "USD" {
		t.Fatalf("expected USD, got %s", p.Currency)
	}

	got, err := env.subscriptions.Get(ctx, acme, sub.ID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if len(got.Payments) != 1 || got.Payments[0].ID != p.ID {
		t.Fatalf("expected the payment on the subscription, got %+v", got.Payments)
	}
}

func TestStaffCannotSeeBilling(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Acme", "admin@acme.test")
	staffCaller := env.staffLogin(t, admin.InstitutionID, "worker@acme.test")

	if _, err := env.payments.List(context.Background(), staffCaller, "", domain.PaymentFilter{}, domain.NewPage(1, 10)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestLoadPlans(t *testing.T) {
	plans, err := LoadPlans("")
	if err != nil {
		t.Fatalf("load default plans: %v", err)
	}
	if len(plans) != 3 || plans[0].ID != "basic" || plans[0].Price != 29000 {
		t.Fatalf("unexpected default plans %+v", plans)
	}

	path := filepath.Join(t.TempDir(), "plans.yaml")
	custom := "- id: solo\n  name: Solo\n  price: 5000\n  billingCycle: yearly\n"
	if err := os.WriteFile(path, []byte(custom), 0o600); err != nil {
		t.Fatalf("write plans: %v", err)
	}
	plans, err = LoadPlans(path)
	if err != nil {
		t.Fatalf("load custom plans: %v", err)
	}
	if len(plans) != 1 || plans[0].BillingCycle != domain.BillingYearly || plans[0].Features == nil {
		t.Fatalf("unexpected custom plans %+v", plans)
	}

	if _, err := parsePlans([]byte("- id: x\n  name: X\n  price: 0\n  billingCycle: monthly\n")); err == nil {
		t.Fatalf("expected zero price to be rejected")
	}
}
