package service

import (
	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/security"
)

// Guard runs the role check and the tenant check every resource operation
// starts with.
type Guard struct {
	authz   *security.AuthorizationService
	tenants *security.TenantScoper
}

func NewGuard(authz *security.AuthorizationService, tenants *security.TenantScoper) *Guard {
	return &Guard{authz: authz, tenants: tenants}
}

// Scope authorizes perm and returns the caller's data scope.
func (g *Guard) Scope(caller domain.Caller, perm security.Permission, requested string) (domain.Scope, error) {
	if err := g.authz.Require(caller, perm); err != nil {
		return domain.Scope{}, err
	}
	return g.tenants.Scope(caller, requested)
}

// Owner authorizes perm and returns the institution new rows belong to.
func (g *Guard) Owner(caller domain.Caller, perm security.Permission, requested string) (string, error) {
	if err := g.authz.Require(caller, perm); err != nil {
		return "", err
	}
	return g.tenants.OwningInstitution(caller, requested)
}

// PayslipFilter pins STAFF callers to their own payslips.
func (g *Guard) PayslipFilter(caller domain.Caller, f domain.PayslipFilter) domain.PayslipFilter {
	return g.tenants.PayslipFilter(caller, f)
}

// PayslipAccess rejects a STAFF caller reading another user's payslip.
func (g *Guard) PayslipAccess(caller domain.Caller, p *domain.Payslip) error {
	return g.tenants.ValidatePayslipAccess(caller, p)
}
