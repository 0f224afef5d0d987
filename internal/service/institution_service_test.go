package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

func TestInstitutionListRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	root := env.superAdmin(t)
	admin := env.signup(t, "Acme", "admin@acme.test")
	env.signup(t, "Other", "admin@other.test")
	env.addStaff(t, admin, "Ada Obi", "ada@acme.test")

	if _, err := env.institutions.List(ctx, admin, domain.InstitutionFilter{}, domain.NewPage(1, 10)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for institution admin, got %v", err)
	}

	page, err := env.institutions.List(ctx, root, domain.InstitutionFilter{}, domain.NewPage(1, 10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 2 {
		t.Fatalf("expected 2 institutions, got %d", page.Pagination.Total)
	}
	for _, inst := range page.Items {
		if inst.ID == admin.InstitutionID && (inst.Counts.Staff != 1 || inst.Counts.Users != 1) {
			t.Fatalf("unexpected counts %+v", inst.Counts)
		}
	}
}

func TestInstitutionAdminSeesOnlyOwnInstitution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.signup(t, "Acme", "admin@acme.test")
	other := env.signup(t, "Other", "admin@other.test")

	if _, err := env.institutions.Get(ctx, acme, acme.InstitutionID); err != nil {
		t.Fatalf("get own institution: %v", err)
	}
	if _, err := env.institutions.Get(ctx, acme, other.InstitutionID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	website := "not a url"
	if _, err := env.institutions.Update(ctx, acme, acme.InstitutionID, UpdateInstitutionInput{Website: &website}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	name := "Acme Academy"
	updated, err := env.institutions.Update(ctx, acme, acme.InstitutionID, UpdateInstitutionInput{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Acme Academy" {
		t.Fatalf("expected renamed institution, got %s", updated.Name)
	}
}
