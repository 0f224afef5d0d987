package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/pkg/database"
)

// testDB migrates and connects to DATABASE_URL, skipping when it is unset.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	pool, err := database.NewConnectionPool(ctx, &database.Config{URL: dsn}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool.GetDB()
}

// uniqueEmail keeps runs against a shared database from colliding.
func uniqueEmail(local string) string {
	return local + "-" + uuid.NewString()[:8] + "@payhub.test"
}

// tenant signs up a fresh institution and returns it with its admin.
func tenant(t *testing.T, db *sql.DB) (*domain.Institution, *domain.User) {
	t.Helper()
	inst := &domain.Institution{Name: "Acme", Email: uniqueEmail("inst"), IsActive: true}
	admin := &domain.User{
		Email:        uniqueEmail("admin"),
		PasswordHash: "hash",
		Name:         "Admin",
		Role:         domain.RoleInstitutionAdmin,
		IsActive:     true,
	}
	if err := NewPostgresInstitutionRepository(db, nil).CreateWithAdmin(context.Background(), inst, admin); err != nil {
		t.Fatalf("create institution: %v", err)
	}
	return inst, admin
}

func addStaff(t *testing.T, db *sql.DB, institutionID, name string) *domain.Staff {
	t.Helper()
	st := &domain.Staff{InstitutionID: institutionID, Name: name, Email: uniqueEmail("staff"), IsActive: true}
	if err := NewPostgresStaffRepository(db, nil).Create(context.Background(), st); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return st
}

func TestPostgresSignupRollsBackOnDuplicateAdmin(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, admin := tenant(t, db)

	inst := &domain.Institution{Name: "Beta", Email: uniqueEmail("inst"), IsActive: true}
	again := &domain.User{Email: admin.Email, PasswordHash: "hash", Name: "Admin", Role: domain.RoleInstitutionAdmin, IsActive: true}
	err := NewPostgresInstitutionRepository(db, nil).CreateWithAdmin(ctx, inst, again)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM institutions WHERE email = $1`, inst.Email).Scan(&n); err != nil {
		t.Fatalf("count institutions: %v", err)
	}
	if n != 0 {
		t.Fatalf("institution row survived the rolled back signup")
	}
}

func TestPostgresDuplicateStaffEmail(t *testing.T) {
	db := testDB(t)
	inst, _ := tenant(t, db)
	st := addStaff(t, db, inst.ID, "Ada Obi")

	dup := &domain.Staff{InstitutionID: inst.ID, Name: "Ada Again", Email: st.Email, IsActive: true}
	if err := NewPostgresStaffRepository(db, nil).Create(context.Background(), dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestPostgresStaffSearchMatchesWildcardsLiterally(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	inst, _ := tenant(t, db)
	addStaff(t, db, inst.ID, "100% Ada")
	addStaff(t, db, inst.ID, "1000 Bola")

	repo := NewPostgresStaffRepository(db, nil)
	rows, total, err := repo.List(ctx, domain.Scope{InstitutionID: inst.ID}, domain.StaffFilter{Search: "100%"}, domain.NewPage(1, 10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].Name != "100% Ada" {
		t.Fatalf("expected only the literal match, got total %d", total)
	}
}

func TestPostgresDuplicatePayslipPeriod(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	inst, _ := tenant(t, db)
	st := addStaff(t, db, inst.ID, "Ada Obi")

	repo := NewPostgresPayslipRepository(db, nil)
	newSlip := func() *domain.Payslip {
		return &domain.Payslip{
			InstitutionID: inst.ID, StaffID: st.ID, Month: "January", Year: 2024,
			GrossPay: 100, NetPay: 90, Status: domain.PayslipProcessing, UploadDate: time.Now(),
		}
	}
	if err := repo.Create(ctx, newSlip()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, newSlip()); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate period, got %v", err)
	}
}

func TestPostgresFinishProcessingRequiresAttachedFile(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	inst, _ := tenant(t, db)
	st := addStaff(t, db, inst.ID, "Ada Obi")
	scope := domain.Scope{InstitutionID: inst.ID}

	repo := NewPostgresPayslipRepository(db, nil)
	p := &domain.Payslip{
		InstitutionID: inst.ID, StaffID: st.ID, Month: "March", Year: 2024,
		GrossPay: 100, NetPay: 90, Status: domain.PayslipProcessing, UploadDate: time.Now(),
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.AttachFile(ctx, scope, p.ID, "/uploads/old.pdf", "old.pdf", time.Now()); err != nil {
		t.Fatalf("attach old: %v", err)
	}
	if _, err := repo.AttachFile(ctx, scope, p.ID, "/uploads/new.pdf", "new.pdf", time.Now()); err != nil {
		t.Fatalf("attach new: %v", err)
	}

	if _, err := repo.FinishProcessing(ctx, p.ID, "/uploads/old.pdf", domain.PayslipAvailable, time.Now()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("finishing a replaced document: expected invalid state, got %v", err)
	}
	done, err := repo.FinishProcessing(ctx, p.ID, "/uploads/new.pdf", domain.PayslipAvailable, time.Now())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if done.Status != domain.PayslipAvailable || done.ProcessedAt == nil {
		t.Fatalf("unexpected payslip %+v", done)
	}
	if _, err := repo.FinishProcessing(ctx, p.ID, "/uploads/new.pdf", domain.PayslipFailed, time.Now()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second finish: expected invalid state, got %v", err)
	}
	if _, err := repo.FinishProcessing(ctx, uuid.NewString(), "", domain.PayslipFailed, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown payslip: expected not found, got %v", err)
	}
}

func TestPostgresPaymentProcessesOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	inst, _ := tenant(t, db)
	scope := domain.Scope{InstitutionID: inst.ID}

	repo := NewPostgresPaymentRepository(db, nil)
	p := &domain.Payment{InstitutionID: inst.ID, Amount: 5000, Currency: "NGN", Status: domain.PaymentPending}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, ref := range []string{"ref-a", "ref-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Transition(ctx, scope, p.ID, domain.PaymentPending, domain.PaymentCompleted, ref)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, domain.ErrInvalidState):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one process to apply, got %d", succeeded)
	}

	if _, err := repo.Transition(ctx, scope, uuid.NewString(), domain.PaymentPending, domain.PaymentCompleted, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown payment: expected not found, got %v", err)
	}
}

func TestPostgresConcurrentActivateLeavesOneActive(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	inst, _ := tenant(t, db)
	scope := domain.Scope{InstitutionID: inst.ID}

	repo := NewPostgresSubscriptionRepository(db, nil)
	var ids []string
	for _, plan := range []string{"Basic", "Premium", "Enterprise"} {
		s := &domain.Subscription{
			InstitutionID: inst.ID, PlanName: plan, PlanPrice: 1000,
			BillingCycle: domain.BillingMonthly, Status: domain.SubscriptionPending,
		}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create subscription: %v", err)
		}
		ids = append(ids, s.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Activate(ctx, scope, id, time.Now()); err != nil {
				t.Errorf("activate %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	var active int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM subscriptions WHERE institution_id = $1 AND status = 'ACTIVE'`, inst.ID,
	).Scan(&active); err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected one ACTIVE subscription, got %d", active)
	}
}

func TestPostgresSecondActiveSubscriptionRejectedByIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	inst, _ := tenant(t, db)

	repo := NewPostgresSubscriptionRepository(db, nil)
	active := func() *domain.Subscription {
		return &domain.Subscription{
			InstitutionID: inst.ID, PlanName: "Basic", PlanPrice: 1000,
			BillingCycle: domain.BillingMonthly, Status: domain.SubscriptionActive,
		}
	}
	if err := repo.Create(ctx, active()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, active()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state from the single-active index, got %v", err)
	}
}

func TestPostgresSingleSuperAdmin(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewPostgresUserRepository(db, nil)

	newAdmin := func() *domain.User {
		return &domain.User{Email: uniqueEmail("root"), PasswordHash: "hash", Name: "Root", Role: domain.RoleSuperAdmin, IsActive: true}
	}
	first := newAdmin()
	err := repo.Create(ctx, first)
	switch {
	case err == nil:
		t.Cleanup(func() { _, _ = db.ExecContext(context.Background(), `DELETE FROM users WHERE id = $1`, first.ID) })
	case errors.Is(err, domain.ErrForbidden):
		// The database already has its super admin.
	default:
		t.Fatalf("create super admin: %v", err)
	}

	if err := repo.Create(ctx, newAdmin()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for a second super admin, got %v", err)
	}
	exists, err := repo.ExistsWithRole(ctx, domain.RoleSuperAdmin)
	if err != nil || !exists {
		t.Fatalf("exists = %v, err %v", exists, err)
	}
}
