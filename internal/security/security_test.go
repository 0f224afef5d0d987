package security

import (
	"errors"
	"testing"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

func TestRequirePermission(t *testing.T) {
	authz := NewAuthorizationService(nil)
	staff := domain.Caller{ID: "u1", Role: domain.RoleStaff, InstitutionID: "i1"}
	admin := domain.Caller{ID: "u2", Role: domain.RoleInstitutionAdmin, InstitutionID: "i1"}
	super := domain.Caller{ID: "u3", Role: domain.RoleSuperAdmin}

	if err := authz.Require(staff, PermManageStaff); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected staff to be forbidden from managing staff, got %v", err)
	}
	if err := authz.Require(staff, PermReadPayslips); err != nil {
		t.Fatalf("expected staff to read payslips, got %v", err)
	}
	if err := authz.Require(admin, PermManageInstitutions); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected admin to be forbidden from listing institutions, got %v", err)
	}
	if err := authz.Require(super, PermManageInstitutions); err != nil {
		t.Fatalf("expected super admin to manage institutions, got %v", err)
	}
	if err := authz.RequireRole(admin, domain.RoleSuperAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected RequireRole to reject admin, got %v", err)
	}
}

func TestScope(t *testing.T) {
	ts := NewTenantScoper(nil)

	scope, err := ts.Scope(domain.Caller{Role: domain.RoleInstitutionAdmin, InstitutionID: "i1"}, "")
	if err != nil || scope.InstitutionID != "i1" {
		t.Fatalf("expected scope i1, got %+v err=%v", scope, err)
	}

	if _, err := ts.Scope(domain.Caller{Role: domain.RoleInstitutionAdmin, InstitutionID: "i1"}, "i2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected naming another institution to be forbidden, got %v", err)
	}

	if _, err := ts.Scope(domain.Caller{Role: domain.RoleStaff}, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected unbound staff to be forbidden, got %v", err)
	}

	scope, err = ts.Scope(domain.Caller{Role: domain.RoleSuperAdmin}, "")
	if err != nil || !scope.Unrestricted() {
		t.Fatalf("expected unrestricted super admin scope, got %+v err=%v", scope, err)
	}

	if _, err := ts.OwningInstitution(domain.Caller{Role: domain.RoleSuperAdmin}, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected super admin create without institution to fail validation, got %v", err)
	}
}

func TestPayslipAccessForStaff(t *testing.T) {
	ts := NewTenantScoper(nil)
	staff := domain.Caller{ID: "u1", Role: domain.RoleStaff, InstitutionID: "i1"}

	f := ts.PayslipFilter(staff, domain.PayslipFilter{UserID: "someone-else"})
	if f.UserID != "u1" {
		t.Fatalf("expected filter pinned to caller, got %q", f.UserID)
	}

	if err := ts.ValidatePayslipAccess(staff, &domain.Payslip{ID: "p1", UserID: "u2"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for another user's payslip, got %v", err)
	}
	if err := ts.ValidatePayslipAccess(staff, &domain.Payslip{ID: "p2", UserID: "u1"}); err != nil {
		t.Fatalf("expected own payslip to be readable, got %v", err)
	}
	admin := domain.Caller{ID: "u9", Role: domain.RoleInstitutionAdmin, InstitutionID: "i1"}
	if err := ts.ValidatePayslipAccess(admin, &domain.Payslip{ID: "p1", UserID: "u2"}); err != nil {
		t.Fatalf("expected admin access, got %v", err)
	}
}
