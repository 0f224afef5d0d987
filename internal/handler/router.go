package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryan0dhankhar/payhub/internal/observability/metrics"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Institutions  *InstitutionHandler
	Staff         *StaffHandler
	Payslips      *PayslipHandler
	PayslipEvents *PayslipEventsHandler
	Billing       *BillingHandler
	Health        *HealthHandler
}

// NewRouter builds the route table. protect wraps routes that need an
// authenticated caller.
func NewRouter(h Handlers, protect func(http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, metrics.InstrumentRoute(pattern, fn))
	}
	private := func(pattern string, fn http.Handler) {
		mux.Handle(pattern, metrics.InstrumentRoute(pattern, protect(fn)))
	}

	public("GET /health", h.Health.Health)
	public("GET /ready", h.Health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	public("POST /api/auth/login", h.Auth.Login)
	public("POST /api/auth/signup", h.Auth.Signup)
	public("POST /api/auth/super-admin", h.Auth.CreateSuperAdmin)
	private("POST /api/auth/change-password", http.HandlerFunc(h.Auth.ChangePassword))
	private("GET /api/auth/me", http.HandlerFunc(h.Auth.Me))
	private("POST /api/auth/logout", http.HandlerFunc(h.Auth.Logout))

	private("GET /api/institutions", http.HandlerFunc(h.Institutions.List))
	private("POST /api/institutions", http.HandlerFunc(h.Institutions.Create))
	private("GET /api/institutions/{id}", http.HandlerFunc(h.Institutions.Get))
	private("PUT /api/institutions/{id}", http.HandlerFunc(h.Institutions.Update))
	private("DELETE /api/institutions/{id}", http.HandlerFunc(h.Institutions.Delete))

	private("GET /api/staff", http.HandlerFunc(h.Staff.List))
	private("POST /api/staff", http.HandlerFunc(h.Staff.Create))
	private("GET /api/staff/departments", http.HandlerFunc(h.Staff.Departments))
	private("POST /api/staff/upload-csv", http.HandlerFunc(h.Staff.UploadCSV))
	private("GET /api/staff/{id}", http.HandlerFunc(h.Staff.Get))
	private("PUT /api/staff/{id}", http.HandlerFunc(h.Staff.Update))
	private("DELETE /api/staff/{id}", http.HandlerFunc(h.Staff.Delete))

	private("GET /api/payslips", http.HandlerFunc(h.Payslips.List))
	private("POST /api/payslips", http.HandlerFunc(h.Payslips.Create))
	private("GET /api/payslips/{id}", http.HandlerFunc(h.Payslips.Get))
	private("PUT /api/payslips/{id}", http.HandlerFunc(h.Payslips.Update))
	private("DELETE /api/payslips/{id}", http.HandlerFunc(h.Payslips.Delete))
	private("POST /api/payslips/{id}/upload", http.HandlerFunc(h.Payslips.Upload))
	// /api/payslips/staff/{staffId} and /api/payslips/{id}/events overlap on
	// /api/payslips/staff/events, which ServeMux rejects, so one pattern
	// dispatches both. The staff listing wins the overlap.
	staffPayslips := metrics.InstrumentRoute("GET /api/payslips/staff/{staffId}", protect(http.HandlerFunc(h.Payslips.ListForStaff)))
	payslipEvents := metrics.InstrumentRoute("GET /api/payslips/{id}/events", protect(h.PayslipEvents))
	mux.HandleFunc("GET /api/payslips/{first}/{second}", func(w http.ResponseWriter, r *http.Request) {
		first, second := r.PathValue("first"), r.PathValue("second")
		switch {
		case first == "staff":
			r.SetPathValue("staffId", second)
			staffPayslips.ServeHTTP(w, r)
		case second == "events":
			r.SetPathValue("id", first)
			payslipEvents.ServeHTTP(w, r)
		default:
			routeNotFound(w, r)
		}
	})

	public("GET /api/subscriptions/plans", h.Billing.Plans)
	private("GET /api/subscriptions", http.HandlerFunc(h.Billing.ListSubscriptions))
	private("POST /api/subscriptions", http.HandlerFunc(h.Billing.CreateSubscription))
	private("GET /api/subscriptions/{id}", http.HandlerFunc(h.Billing.GetSubscription))
	private("PUT /api/subscriptions/{id}", http.HandlerFunc(h.Billing.UpdateSubscription))
	private("DELETE /api/subscriptions/{id}", http.HandlerFunc(h.Billing.CancelSubscription))
	private("POST /api/subscriptions/{id}/activate", http.HandlerFunc(h.Billing.ActivateSubscription))

	private("GET /api/payments", http.HandlerFunc(h.Billing.ListPayments))
	private("POST /api/payments", http.HandlerFunc(h.Billing.CreatePayment))
	private("GET /api/payments/{id}", http.HandlerFunc(h.Billing.GetPayment))
	private("PUT /api/payments/{id}", http.HandlerFunc(h.Billing.UpdatePayment))
	private("DELETE /api/payments/{id}", http.HandlerFunc(h.Billing.DeletePayment))
	private("POST /api/payments/{id}/process", http.HandlerFunc(h.Billing.ProcessPayment))
	private("POST /api/payments/{id}/refund", http.HandlerFunc(h.Billing.RefundPayment))

	mux.HandleFunc("/", routeNotFound)
	return mux
}

func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, Envelope{Success: false, Error: "Route not found"})
}
