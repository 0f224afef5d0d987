package security

import (
	"log/slog"
	"slices"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermManageInstitutions Permission = "manage_institutions"
	PermViewInstitution    Permission = "view_institution"
	PermManageStaff        Permission = "manage_staff"
	PermReadPayslips       Permission = "read_payslips"
	PermManagePayslips     Permission = "manage_payslips"
	PermManageBilling      Permission = "manage_billing"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleSuperAdmin: {
		PermManageInstitutions,
		PermViewInstitution,
		PermManageStaff,
		PermReadPayslips,
		PermManagePayslips,
		PermManageBilling,
	},
	domain.RoleInstitutionAdmin: {
		PermViewInstitution,
		PermManageStaff,
		PermReadPayslips,
		PermManagePayslips,
		PermManageBilling,
	},
	domain.RoleStaff: {
		PermReadPayslips,
	},
}

var errInsufficientPermissions = domain.NewError(domain.ErrForbidden, "Access denied. Insufficient permissions.")

// AuthorizationService is the role authorizer: a pure check of the caller's
// role against what an operation requires.
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}

// Require fails with ErrForbidden unless the caller's role grants permission.
func (as *AuthorizationService) Require(caller domain.Caller, permission Permission) error {
	if !as.HasPermission(caller.Role, permission) {
		as.logger.Warn("permission denied",
			slog.String("user_id", caller.ID),
			slog.String("role", string(caller.Role)),
			slog.String("permission", string(permission)),
		)
		return errInsufficientPermissions
	}
	return nil
}

// RequireRole fails with ErrForbidden unless the caller holds one of roles.
func (as *AuthorizationService) RequireRole(caller domain.Caller, roles ...domain.Role) error {
	if !slices.Contains(roles, caller.Role) {
		as.logger.Warn("role denied",
			slog.String("user_id", caller.ID),
			slog.String("role", string(caller.Role)),
		)
		return errInsufficientPermissions
	}
	return nil
}
