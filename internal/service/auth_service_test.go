package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

func TestSignupCreatesInstitutionAndAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Signup(ctx, SignupInput{
		InstitutionName: "Acme School",
		Email:           "Admin@Acme.test",
		PhoneNumber:     "08012345678",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if res.Token == "" {
		t.Fatalf("expected a token")
	}
	if res.User.Role != domain.RoleInstitutionAdmin {
		t.Fatalf("expected INSTITUTION_ADMIN, got %s", res.User.Role)
	}
	if res.User.Email != "admin@acme.test" {
		t.Fatalf("expected lower-cased email, got %s", res.User.Email)
	}
	if res.User.Institution == nil || res.User.Institution.Name != "Acme School" {
		t.Fatalf("expected institution in profile, got %+v", res.User.Institution)
	}

	_, err = env.auth.Signup(ctx, SignupInput{
		InstitutionName: "Acme Two",
		Email:           "admin@acme.test",
		PhoneNumber:     "08012345678",
		Password:        testPassword,
	})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if domain.Message(err) != "User with this email already exists" {
		t.Fatalf("unexpected message: %q", domain.Message(err))
	}
}

func TestSignupReportsFirstInvalidField(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Signup(context.Background(), SignupInput{
		InstitutionName: "A",
		Email:           "not-an-email",
		PhoneNumber:     "123",
		Password:        "short",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := domain.Message(err); got != "Institution name must be at least 2 characters" {
		t.Fatalf("unexpected message: %q", got)
	}

	_, err = env.auth.Signup(context.Background(), SignupInput{
		InstitutionName: "Acme",
		Email:           "a@acme.test",
		PhoneNumber:     "08012345678",
		Password:        testPassword,
		ConfirmPassword: "Different1",
	})
	if got := domain.Message(err); got != "Passwords don't match" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestLoginDoesNotRevealWhichCheckFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "Acme", "admin@acme.test")

	_, unknownErr := env.auth.Login(ctx, LoginInput{Email: "nobody@acme.test", Password: testPassword})
	_, wrongErr := env.auth.Login(ctx, LoginInput{Email: "admin@acme.test", Password: "Wrong-password"})
	if !errors.Is(unknownErr, domain.ErrInvalidCredentials) || !errors.Is(wrongErr, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("errors differ: %q vs %q", unknownErr, wrongErr)
	}

	res, err := env.auth.Login(ctx, LoginInput{Email: "ADMIN@acme.test", Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.User.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}

	caller, err := env.sessions.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if caller.ID != res.User.ID || caller.InstitutionID != res.User.InstitutionID {
		t.Fatalf("unexpected caller %+v", caller)
	}
}

func TestDeactivatedInstitutionBlocksLoginAndSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	root := env.superAdmin(t)
	env.signup(t, "Acme", "admin@acme.test")

	res, err := env.auth.Login(ctx, LoginInput{Email: "admin@acme.test", Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.institutions.Deactivate(ctx, root, res.User.InstitutionID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := env.auth.Login(ctx, LoginInput{Email: "admin@acme.test", Password: testPassword}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected login to fail, got %v", err)
	}
	_, err = env.sessions.Authenticate(ctx, res.Token)
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if domain.Message(err) != "Institution is inactive" {
		t.Fatalf("unexpected message: %q", domain.Message(err))
	}
}

func TestSessionRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.sessions.Authenticate(ctx, "garbage"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	ghost := &domain.User{ID: "ghost", Email: "ghost@acme.test", Role: domain.RoleStaff}
	token, err := env.tokens.GenerateToken(ghost)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := env.sessions.Authenticate(ctx, token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown user, got %v", err)
	}
}

func TestSuperAdminIsSingleton(t *testing.T) {
	env := newTestEnv(t)
	env.superAdmin(t)

	_, err := env.auth.CreateSuperAdmin(context.Background(), SuperAdminInput{
		Email:    "other@payhub.test",
		Password: testPassword,
		Name:     "Other",
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.signup(t, "Acme", "admin@acme.test")

	err := env.auth.ChangePassword(ctx, admin, ChangePasswordInput{
		CurrentPassword: "Wrong-password",
		NewPassword:     "NewPassword456",
		ConfirmPassword: "NewPassword456",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if domain.Message(err) != "Current password is incorrect" {
		t.Fatalf("unexpected message: %q", domain.Message(err))
	}

	err = env.auth.ChangePassword(ctx, admin, ChangePasswordInput{
		CurrentPassword: testPassword,
		NewPassword:     "NewPassword456",
		ConfirmPassword: "NewPassword456",
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.auth.Login(ctx, LoginInput{Email: "admin@acme.test", Password: "NewPassword456"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := env.auth.Login(ctx, LoginInput{Email: "admin@acme.test", Password: testPassword}); err == nil {
		t.Fatalf("expected old password to be rejected")
	}
}
