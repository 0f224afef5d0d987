package service

import (
	"context"
	"testing"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/inproc"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/payhub/internal/repository/memory"
	"github.com/aryan0dhankhar/payhub/internal/security"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
	"github.com/aryan0dhankhar/payhub/internal/security/auth"
)

const testPassword = "Password123"

type testEnv struct {
	store         *memory.Store
	uploadDir     string
	queue         *inproc.JobQueue
	events        *inproc.Broadcaster
	tokens        *auth.TokenManager
	hasher        *auth.PasswordHasher
	gate          *InstitutionGate
	auth          *AuthService
	sessions      *SessionAuthenticator
	institutions  *InstitutionService
	staff         *StaffService
	payslips      *PayslipService
	subscriptions *SubscriptionService
	payments      *PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	uploadDir := t.TempDir()
	files, err := storage.NewLocalStore(uploadDir, nil)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	plans, err := LoadPlans("")
	if err != nil {
		t.Fatalf("load plans: %v", err)
	}

	hasher := auth.NewPasswordHasher(4)
	tokens := auth.NewTokenManager("test-secret-test-secret-test-secret", "payhub-test", time.Hour)
	gate := NewInstitutionGate(store.Institutions(), nil)
	auditLog := audit.NewLogger(store.Audit(), nil)
	authz := security.NewAuthorizationService(nil)
	tenants := security.NewTenantScoper(nil)
	guard := NewGuard(authz, tenants)
	queue := inproc.NewJobQueue(16)
	events := inproc.NewBroadcaster()

	return &testEnv{
		store:     store,
		uploadDir: uploadDir,
		queue:     queue,
		events:    events,
		tokens:    tokens,
		hasher:    hasher,
		gate:      gate,
		auth:      NewAuthService(store.Users(), store.Institutions(), gate, hasher, tokens, auditLog, nil),
		sessions:  NewSessionAuthenticator(tokens, store.Users(), gate, nil),
		institutions: NewInstitutionService(
			store.Institutions(), store.Users(), store.Staff(), store.Payslips(), store.Subscriptions(),
			hasher, gate, authz, tenants, auditLog, nil,
		),
		staff: NewStaffService(store.Staff(), store.Payslips(), files, guard, auditLog, nil),
		payslips: NewPayslipService(
			store.Payslips(), store.Staff(), store.Users(), files, queue, events, nil, guard, auditLog, nil,
		),
		subscriptions: NewSubscriptionService(store.Subscriptions(), store.Payments(), plans, guard, auditLog, nil),
		payments:      NewPaymentService(store.Payments(), store.Subscriptions(), guard, auditLog, nil),
	}
}

func callerOf(p *Profile) domain.Caller {
	return domain.Caller{ID: p.ID, Email: p.Email, Role: p.Role, InstitutionID: p.InstitutionID}
}

// signup registers an institution and returns its admin.
func (e *testEnv) signup(t *testing.T, name, email string) domain.Caller {
	t.Helper()
	res, err := e.auth.Signup(context.Background(), SignupInput{
		InstitutionName: name,
		Email:           email,
		PhoneNumber:     "08012345678",
		Password:        testPassword,
	})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return callerOf(res.User)
}

func (e *testEnv) superAdmin(t *testing.T) domain.Caller {
	t.Helper()
	res, err := e.auth.CreateSuperAdmin(context.Background(), SuperAdminInput{
		Email:    "root@payhub.test",
		Password: testPassword,
		Name:     "Root",
	})
	if err != nil {
		t.Fatalf("create super admin: %v", err)
	}
	return callerOf(res.User)
}

// staffLogin stores a STAFF user bound to institutionID.
func (e *testEnv) staffLogin(t *testing.T, institutionID, email string) domain.Caller {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{
		Email:         email,
		PasswordHash:  hash,
		Name:          "Staff " + email,
		Role:          domain.RoleStaff,
		InstitutionID: institutionID,
		IsActive:      true,
	}
	if err := e.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create staff user: %v", err)
	}
	return domain.Caller{ID: u.ID, Email: u.Email, Role: u.Role, InstitutionID: institutionID}
}

func (e *testEnv) addStaff(t *testing.T, admin domain.Caller, name, email string) *domain.Staff {
	t.Helper()
	st, err := e.staff.Create(context.Background(), admin, CreateStaffInput{Name: name, Email: email})
	if err != nil {
		t.Fatalf("create staff %s: %v", email, err)
	}
	return st
}
