package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/service"
)

// BillingHandler handles subscriptions, payments and the plan catalog.
type BillingHandler struct {
	subscriptions *service.SubscriptionService
	payments      *service.PaymentService
	logger        *slog.Logger
}

func NewBillingHandler(subscriptions *service.SubscriptionService, payments *service.PaymentService, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{subscriptions: subscriptions, payments: payments, logger: logger}
}

// Plans handles GET /api/subscriptions/plans. It is public.
func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.subscriptions.Plans())
}

func (h *BillingHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	subs, err := h.subscriptions.List(r.Context(), c, r.URL.Query().Get("institutionId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}
	writeData(w, http.StatusOK, subs)
}

func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.subscriptions.Get(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

func (h *BillingHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.CreateSubscriptionInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.subscriptions.Create(r.Context(), c, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, sub)
}

func (h *BillingHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.UpdateSubscriptionInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.subscriptions.Update(r.Context(), c, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

// CancelSubscription handles DELETE /api/subscriptions/{id}; the record is kept.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.subscriptions.Cancel(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Subscription cancelled successfully", sub)
}

func (h *BillingHandler) ActivateSubscription(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.subscriptions.Activate(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Subscription activated successfully", sub)
}

// ListPayments handles GET /api/payments?status=&subscriptionId=
func (h *BillingHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := domain.PaymentFilter{
		Status:         domain.PaymentStatus(q.Get("status")),
		SubscriptionID: q.Get("subscriptionId"),
	}
	page, err := h.payments.List(r.Context(), c, q.Get("institutionId"), filter, pageFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (h *BillingHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payments.Get(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *BillingHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.CreatePaymentInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payments.Create(r.Context(), c, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

func (h *BillingHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.UpdatePaymentInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payments.Update(r.Context(), c, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *BillingHandler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.payments.Delete(r.Context(), c, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Payment deleted successfully", nil)
}

// ProcessPayment handles POST /api/payments/{id}/process
func (h *BillingHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payments.Process(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Payment processed successfully", p)
}

// RefundPayment handles POST /api/payments/{id}/refund
func (h *BillingHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payments.Refund(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Payment refunded successfully", p)
}
