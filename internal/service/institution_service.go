package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/security"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
	"github.com/aryan0dhankhar/payhub/internal/security/auth"
)

// InstitutionView is an institution with the number of rows it owns.
type InstitutionView struct {
	*domain.Institution
	Counts domain.InstitutionCounts `json:"_count"`
}

type CreateInstitutionInput struct {
	Name          string `json:"name" validate:"min=2" msg:"Institution name must be at least 2 characters"`
	Email         string `json:"email" validate:"required,email" msg:"Invalid email address"`
	PhoneNumber   string `json:"phoneNumber" validate:"min=10" msg:"Phone number must be at least 10 characters"`
	Address       string `json:"address"`
	Website       string `json:"website" validate:"omitempty,url" msg:"Invalid website URL"`
	AdminName     string `json:"adminName" validate:"omitempty,min=2" msg:"Name must be at least 2 characters"`
	AdminPassword string `json:"adminPassword" validate:"min=8" msg:"Password must be at least 8 characters"`
}

// UpdateInstitutionInput is a partial update; nil fields are left alone.
type UpdateInstitutionInput struct {
	Name        *string `json:"name" validate:"omitnil,min=2" msg:"Name must be at least 2 characters"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitnil,min=10" msg:"Phone number must be at least 10 characters"`
	Address     *string `json:"address"`
	Website     *string `json:"website" validate:"omitempty,url" msg:"Invalid website URL"`
}

// InstitutionService manages tenants. Listing, creation and deactivation
// are SUPER_ADMIN operations; an institution admin may view and update
// its own institution.
type InstitutionService struct {
	institutions  domain.InstitutionRepository
	users         domain.UserRepository
	staff         domain.StaffRepository
	payslips      domain.PayslipRepository
	subscriptions domain.SubscriptionRepository
	hasher        *auth.PasswordHasher
	gate          *InstitutionGate
	authz         *security.AuthorizationService
	tenants       *security.TenantScoper
	audit         *audit.Logger
	logger        *slog.Logger
}

func NewInstitutionService(
	institutions domain.InstitutionRepository,
	users domain.UserRepository,
	staff domain.StaffRepository,
	payslips domain.PayslipRepository,
	subscriptions domain.SubscriptionRepository,
	hasher *auth.PasswordHasher,
	gate *InstitutionGate,
	authz *security.AuthorizationService,
	tenants *security.TenantScoper,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *InstitutionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstitutionService{
		institutions:  institutions,
		users:         users,
		staff:         staff,
		payslips:      payslips,
		subscriptions: subscriptions,
		hasher:        hasher,
		gate:          gate,
		authz:         authz,
		tenants:       tenants,
		audit:         auditLog,
		logger:        logger,
	}
}

func (s *InstitutionService) List(ctx context.Context, caller domain.Caller, filter domain.InstitutionFilter, page domain.Page) (domain.PageOf[*InstitutionView], error) {
	if err := s.authz.Require(caller, security.PermManageInstitutions); err != nil {
		return domain.PageOf[*InstitutionView]{}, err
	}
	rows, total, err := s.institutions.List(ctx, filter, page)
	if err != nil {
		return domain.PageOf[*InstitutionView]{}, err
	}

	views := make([]*InstitutionView, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, inst := range rows {
		g.Go(func() error {
			counts, err := s.counts(gctx, inst.ID, false)
			if err != nil {
				return err
			}
			views[i] = &InstitutionView{Institution: inst, Counts: counts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.PageOf[*InstitutionView]{}, err
	}
	return domain.NewPageOf(views, page, total), nil
}

func (s *InstitutionService) Get(ctx context.Context, caller domain.Caller, id string) (*InstitutionView, error) {
	if err := s.authorizeOwn(caller, id); err != nil {
		return nil, err
	}
	inst, err := s.institutions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.counts(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return &InstitutionView{Institution: inst, Counts: counts}, nil
}

// Create registers an institution with its admin on behalf of a SUPER_ADMIN.
func (s *InstitutionService) Create(ctx context.Context, caller domain.Caller, in CreateInstitutionInput) (*InstitutionView, error) {
	if err := s.authz.Require(caller, security.PermManageInstitutions); err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	adminName := in.AdminName
	if adminName == "" {
		adminName = in.Name
	}
	email := normalizeEmail(in.Email)
	inst := &domain.Institution{
		Name:        in.Name,
		Email:       email,
		PhoneNumber: in.PhoneNumber,
		Address:     in.Address,
		Website:     in.Website,
		IsActive:    true,
	}
	admin := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Name:         adminName,
		Role:         domain.RoleInstitutionAdmin,
		PhoneNumber:  in.PhoneNumber,
		IsActive:     true,
	}
	if err := s.institutions.CreateWithAdmin(ctx, inst, admin); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "institution_created",
		EntityType:    "institution",
		EntityID:      inst.ID,
		UserID:        caller.ID,
		InstitutionID: inst.ID,
	})
	return &InstitutionView{Institution: inst, Counts: domain.InstitutionCounts{Users: 1}}, nil
}

func (s *InstitutionService) Update(ctx context.Context, caller domain.Caller, id string, in UpdateInstitutionInput) (*domain.Institution, error) {
	if err := s.authorizeOwn(caller, id); err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	inst, err := s.institutions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		inst.Name = *in.Name
	}
	if in.PhoneNumber != nil {
		inst.PhoneNumber = *in.PhoneNumber
	}
	if in.Address != nil {
		inst.Address = *in.Address
	}
	if in.Website != nil {
		inst.Website = *in.Website
	}
	if err := s.institutions.Update(ctx, inst); err != nil {
		return nil, err
	}
	s.gate.Forget(id)

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "institution_updated",
		EntityType:    "institution",
		EntityID:      id,
		UserID:        caller.ID,
		InstitutionID: id,
	})
	return inst, nil
}

// Deactivate soft-deletes an institution. Its users can no longer log in
// or use existing sessions; its rows are left untouched.
func (s *InstitutionService) Deactivate(ctx context.Context, caller domain.Caller, id string) error {
	if err := s.authz.Require(caller, security.PermManageInstitutions); err != nil {
		return err
	}
	if err := s.institutions.Deactivate(ctx, id); err != nil {
		return err
	}
	s.gate.Forget(id)

	s.logger.Info("institution deactivated",
		slog.String("institution_id", id),
		slog.String("user_id", caller.ID),
	)
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "institution_deactivated",
		EntityType:    "institution",
		EntityID:      id,
		UserID:        caller.ID,
		InstitutionID: id,
	})
	return nil
}

func (s *InstitutionService) authorizeOwn(caller domain.Caller, id string) error {
	if err := s.authz.Require(caller, security.PermViewInstitution); err != nil {
		return err
	}
	_, err := s.tenants.Scope(caller, id)
	return err
}

func (s *InstitutionService) counts(ctx context.Context, id string, withSubscriptions bool) (domain.InstitutionCounts, error) {
	var c domain.InstitutionCounts
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		c.Users, err = s.users.CountByInstitution(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		c.Staff, err = s.staff.CountByInstitution(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		c.Payslips, err = s.payslips.CountByInstitution(ctx, id)
		return err
	})
	if withSubscriptions {
		g.Go(func() (err error) {
			c.Subscriptions, err = s.subscriptions.CountByInstitution(ctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return domain.InstitutionCounts{}, fmt.Errorf("count institution rows: %w", err)
	}
	return c, nil
}
