package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

func TestImportRecordsDuplicateRowAndContinues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.signup(t, "Acme", "admin@acme.test")

	csv := strings.Join([]string{
		"name,email,department,salary",
		"Ada Obi,ada@acme.test,Science,150000",
		"Bola Ade,bola@acme.test,Arts,120000",
		"Ada Again,ADA@acme.test,Science,",
		"Chi Eze,chi@acme.test,,",
		"Dayo Ola,dayo@acme.test,Arts,99000",
	}, "\n")

	result, err := env.staff.Import(ctx, admin, "", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.TotalProcessed != 5 || result.SuccessCount != 4 || result.ErrorCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0] != "Row 3: Staff with email ada@acme.test already exists" {
		t.Fatalf("unexpected errors %v", result.Errors)
	}

	page, err := env.staff.List(ctx, admin, "", domain.StaffFilter{}, domain.NewPage(1, 10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 4 {
		t.Fatalf("expected 4 stored staff, got %d", page.Pagination.Total)
	}
}

func TestImportKeepsUploadedFile(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Acme", "admin@acme.test")

	csv := "name,email\nAda Obi,ada@acme.test\n"
	if _, err := env.staff.Import(context.Background(), admin, "", strings.NewReader(csv)); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	stored, err := filepath.Glob(filepath.Join(env.uploadDir, "staff-*.csv"))
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored csv, got %v (err %v)", stored, err)
	}
	body, err := os.ReadFile(stored[0])
	if err != nil {
		t.Fatalf("read stored csv: %v", err)
	}
	if string(body) != csv {
		t.Fatalf("stored content = %q", body)
	}
}

func TestImportRowErrors(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Acme", "admin@acme.test")

	csv := "Name,Email,Salary\n,missing@acme.test,\nNo Email,,\nBad Salary,bad@acme.test,-5\nGood One,good@acme.test,10\n"
	result, err := env.staff.Import(context.Background(), admin, "", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	want := []string{
		"Row 1: Name and email are required",
		"Row 2: Name and email are required",
		"Row 3: Salary must be positive",
	}
	if result.SuccessCount != 1 || result.ErrorCount != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	for i, msg := range want {
		if result.Errors[i] != msg {
			t.Fatalf("error %d: got %q, want %q", i, result.Errors[i], msg)
		}
	}
}

func TestImportRejectsFileWithoutRequiredColumns(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Acme", "admin@acme.test")

	_, err := env.staff.Import(context.Background(), admin, "", strings.NewReader("name,department\nAda,Science\n"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = env.staff.Import(context.Background(), admin, "", strings.NewReader(""))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty file, got %v", err)
	}
}

func TestStaffListPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.signup(t, "Acme", "admin@acme.test")
	for i := range 25 {
		env.addStaff(t, admin, fmt.Sprintf("Staff %02d", i), fmt.Sprintf("staff%02d@acme.test", i))
	}

	page, err := env.staff.List(ctx, admin, "", domain.StaffFilter{}, domain.NewPage(2, 10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 10 {
		t.Fatalf("expected 10 items, got %d", len(page.Items))
	}
	p := page.Pagination
	if p.Total != 25 || p.TotalPages != 3 || !p.HasNext || !p.HasPrev {
		t.Fatalf("unexpected pagination %+v", p)
	}
}

func TestStaffIsTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.signup(t, "Acme", "admin@acme.test")
	other := env.signup(t, "Other", "admin@other.test")
	st := env.addStaff(t, acme, "Ada Obi", "ada@acme.test")

	if _, err := env.staff.Get(ctx, other, st.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if _, err := env.staff.List(ctx, other, acme.InstitutionID, domain.StaffFilter{}, domain.NewPage(1, 10)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for foreign institution id, got %v", err)
	}

	// The same email is free in another institution.
	env.addStaff(t, other, "Ada Obi", "ada@acme.test")

	_, err := env.staff.Create(ctx, acme, CreateStaffInput{Name: "Ada Two", Email: "ADA@acme.test"})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestStaffUpdateIsPartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.signup(t, "Acme", "admin@acme.test")
	st := env.addStaff(t, admin, "Ada Obi", "ada@acme.test")

	dept := "Science"
	updated, err := env.staff.Update(ctx, admin, st.ID, UpdateStaffInput{Department: &dept})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Department != "Science" || updated.Name != "Ada Obi" || updated.Email != "ada@acme.test" {
		t.Fatalf("unexpected staff after update %+v", updated)
	}

	zero := 0.0
	if _, err := env.staff.Update(ctx, admin, st.ID, UpdateStaffInput{Salary: &zero}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero salary, got %v", err)
	}

	departments, err := env.staff.Departments(ctx, admin, "")
	if err != nil {
		t.Fatalf("departments: %v", err)
	}
	if len(departments) != 1 || departments[0] != "Science" {
		t.Fatalf("unexpected departments %v", departments)
	}
}

func TestStaffRoleCannotManageStaff(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Acme", "admin@acme.test")
	staffCaller := env.staffLogin(t, admin.InstitutionID, "worker@acme.test")

	_, err := env.staff.Create(context.Background(), staffCaller, CreateStaffInput{Name: "Someone", Email: "s@acme.test"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
