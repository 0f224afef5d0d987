package security

import (
	"log/slog"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

var (
	errInstitutionRequired = domain.NewError(domain.ErrForbidden, "Access denied. Institution access required.")
	errOtherInstitution    = domain.NewError(domain.ErrForbidden, "Access denied")
	errOtherUsersPayslip   = domain.NewError(domain.ErrForbidden, "Access denied")
)

// TenantScoper confines every data access to the caller's own institution.
// SUPER_ADMIN callers are unrestricted.
type TenantScoper struct {
	logger *slog.Logger
}

// NewTenantScoper creates a tenant scoper
func NewTenantScoper(logger *slog.Logger) *TenantScoper {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantScoper{logger: logger}
}

// Scope returns the institution filter for the caller. requested is an
// institution id named by the request (path or query), or empty.
func (ts *TenantScoper) Scope(caller domain.Caller, requested string) (domain.Scope, error) {
	if caller.Role == domain.RoleSuperAdmin {
		return domain.Scope{InstitutionID: requested}, nil
	}
	if caller.InstitutionID == "" {
		ts.logger.Warn("caller has no institution binding",
			slog.String("user_id", caller.ID),
			slog.String("role", string(caller.Role)),
		)
		return domain.Scope{}, errInstitutionRequired
	}
	if requested != "" && requested != caller.InstitutionID {
		ts.logger.Warn("tenant access denied",
			slog.String("user_id", caller.ID),
			slog.String("user_tenant", caller.InstitutionID),
			slog.String("requested_tenant", requested),
		)
		return domain.Scope{}, errOtherInstitution
	}
	return domain.Scope{InstitutionID: caller.InstitutionID}, nil
}

// OwningInstitution resolves which institution a new row belongs to. A
// SUPER_ADMIN must name one explicitly.
func (ts *TenantScoper) OwningInstitution(caller domain.Caller, requested string) (string, error) {
	scope, err := ts.Scope(caller, requested)
	if err != nil {
		return "", err
	}
	if scope.Unrestricted() {
		return "", domain.NewError(domain.ErrValidation, "institutionId is required")
	}
	return scope.InstitutionID, nil
}

// PayslipFilter narrows a payslip filter for the caller: STAFF callers only
// ever see payslips addressed to their own login.
func (ts *TenantScoper) PayslipFilter(caller domain.Caller, f domain.PayslipFilter) domain.PayslipFilter {
	if caller.Role == domain.RoleStaff {
		f.UserID = caller.ID
	}
	return f
}

// ValidatePayslipAccess rejects a STAFF caller reading another user's payslip.
func (ts *TenantScoper) ValidatePayslipAccess(caller domain.Caller, p *domain.Payslip) error {
	if caller.Role != domain.RoleStaff || p.UserID == caller.ID {
		return nil
	}
	ts.logger.Warn("payslip access denied",
		slog.String("user_id", caller.ID),
		slog.String("payslip_id", p.ID),
	)
	return errOtherUsersPayslip
}
