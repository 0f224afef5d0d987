package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
	"github.com/aryan0dhankhar/payhub/internal/security/auth"
)

var (
	errInvalidCredentials = domain.NewError(domain.ErrInvalidCredentials, "Invalid credentials")
	errWrongPassword      = domain.NewError(domain.ErrInvalidCredentials, "Current password is incorrect")
	errSuperAdminExists   = domain.NewError(domain.ErrForbidden, "Super admin already exists. Cannot create another one.")
	errUserEmailTaken     = domain.NewError(domain.ErrDuplicate, "User with this email already exists")
)

// AuthService is the credential store: login, signup, super admin
// bootstrap and password changes.
type AuthService struct {
	users        domain.UserRepository
	institutions domain.InstitutionRepository
	gate         *InstitutionGate
	hasher       *auth.PasswordHasher
	tokens       *auth.TokenManager
	audit        *audit.Logger
	logger       *slog.Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users domain.UserRepository,
	institutions domain.InstitutionRepository,
	gate *InstitutionGate,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:        users,
		institutions: institutions,
		gate:         gate,
		hasher:       hasher,
		tokens:       tokens,
		audit:        auditLog,
		logger:       logger,
		now:          time.Now,
	}
}

// Profile is a user as returned to clients, with its institution attached.
type Profile struct {
	*domain.User
	Institution *InstitutionRef `json:"institution,omitempty"`
}

// InstitutionRef is the short form of an institution embedded in profiles.
type InstitutionRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResult is returned by login, signup and super admin creation
type AuthResult struct {
	User  *Profile `json:"user"`
	Token string   `json:"token"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email" msg:"Invalid email address"`
	Password string `json:"password" validate:"required" msg:"Password is required"`
}

type SignupInput struct {
	InstitutionName string `json:"institutionName" validate:"min=2" msg:"Institution name must be at least 2 characters"`
	Email           string `json:"email" validate:"required,email" msg:"Invalid email address"`
	PhoneNumber     string `json:"phoneNumber" validate:"min=10" msg:"Phone number must be at least 10 characters"`
	Password        string `json:"password" validate:"min=8" msg:"Password must be at least 8 characters"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password" msg:"Passwords don't match"`
}

type SuperAdminInput struct {
	Email    string `json:"email" validate:"required,email" msg:"Invalid email address"`
	Password string `json:"password" validate:"min=8" msg:"Password must be at least 8 characters"`
	Name     string `json:"name" validate:"min=2" msg:"Name must be at least 2 characters"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required" msg:"Current password is required"`
	NewPassword     string `json:"newPassword" validate:"min=8" msg:"New password must be at least 8 characters"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=NewPassword" msg:"Passwords don't match"`
}

// Login verifies credentials and issues a token. Every failure (unknown
// email, inactive user or institution, wrong password) returns the same
// error, and unknown emails still pay for a hash comparison.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load user: %w", err)
		}
		_, _ = s.hasher.Matches(s.timingHash(), in.Password)
		return nil, s.loginFailed(email, "unknown_email")
	}

	ok, err := s.hasher.Matches(user.PasswordHash, in.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.loginFailed(email, "wrong_password")
	}
	if !user.IsActive {
		return nil, s.loginFailed(email, "inactive_user")
	}
	active, err := s.gate.Active(ctx, user.InstitutionID)
	if err != nil {
		return nil, fmt.Errorf("check institution: %w", err)
	}
	if !active {
		return nil, s.loginFailed(email, "inactive_institution")
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &now

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "login",
		EntityType:    "user",
		EntityID:      user.ID,
		UserID:        user.ID,
		InstitutionID: user.InstitutionID,
	})
	return result, nil
}

func (s *AuthService) loginFailed(email, reason string) error {
	metrics.ObserveAuthFailure(reason)
	s.logger.Info("login failed", slog.String("email", email), slog.String("reason", reason))
	return errInvalidCredentials
}

// timingHash is a throwaway hash compared against when the email is unknown.
func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("payhub-unknown-user")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// Signup creates an institution together with its first admin.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	email := normalizeEmail(in.Email)
	// Report a taken login email ahead of the institution email, which is
	// usually the same address. The insert below stays the real guard.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, errUserEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	institution := &domain.Institution{
		Name:        in.InstitutionName,
		Email:       email,
		PhoneNumber: in.PhoneNumber,
		IsActive:    true,
	}
	admin := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Name:         in.InstitutionName,
		Role:         domain.RoleInstitutionAdmin,
		PhoneNumber:  in.PhoneNumber,
		IsActive:     true,
	}
	if err := s.institutions.CreateWithAdmin(ctx, institution, admin); err != nil {
		return nil, err
	}

	s.logger.Info("institution signed up",
		slog.String("institution_id", institution.ID),
		slog.String("user_id", admin.ID),
	)
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "signup",
		EntityType:    "institution",
		EntityID:      institution.ID,
		UserID:        admin.ID,
		InstitutionID: institution.ID,
	})
	return s.issue(ctx, admin)
}

// CreateSuperAdmin bootstraps the single SUPER_ADMIN. The lookup only
// orders the error messages; the store's constraint is what guarantees
// there is never a second one.
func (s *AuthService) CreateSuperAdmin(ctx context.Context, in SuperAdminInput) (*AuthResult, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	exists, err := s.users.ExistsWithRole(ctx, domain.RoleSuperAdmin)
	if err != nil {
		return nil, fmt.Errorf("check super admin: %w", err)
	}
	if exists {
		return nil, errSuperAdminExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		Name:         in.Name,
		Role:         domain.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Warn("super admin created", slog.String("user_id", user.ID))
	s.audit.LogAction(ctx, audit.Entry{
		Action:     "super_admin_created",
		EntityType: "user",
		EntityID:   user.ID,
		UserID:     user.ID,
	})
	return s.issue(ctx, user)
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, caller domain.Caller, in ChangePasswordInput) error {
	if err := validateInput(&in); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Matches(user.PasswordHash, in.CurrentPassword)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		metrics.ObserveAuthFailure("wrong_current_password")
		return errWrongPassword
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.logger.Info("user changed password", slog.String("user_id", user.ID))
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "password_changed",
		EntityType:    "user",
		EntityID:      user.ID,
		UserID:        user.ID,
		InstitutionID: user.InstitutionID,
	})
	return nil
}

// Me returns the caller's profile.
func (s *AuthService) Me(ctx context.Context, caller domain.Caller) (*Profile, error) {
	user, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user *domain.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	profile, err := s.profile(ctx, user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: profile, Token: token}, nil
}

func (s *AuthService) profile(ctx context.Context, user *domain.User) (*Profile, error) {
	p := &Profile{User: user}
	if user.InstitutionID == "" {
		return p, nil
	}
	inst, err := s.institutions.GetByID(ctx, user.InstitutionID)
	switch {
	case err == nil:
		p.Institution = &InstitutionRef{ID: inst.ID, Name: inst.Name, Email: inst.Email}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load institution: %w", err)
	}
	return p, nil
}
