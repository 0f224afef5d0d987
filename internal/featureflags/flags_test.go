package featureflags

import "testing"

func TestEnabled(t *testing.T) {
	t.Setenv("FLAG_STRICT_PDF_CHECK", "Yes")
	if !Enabled(StrictPDFCheck) {
		t.Fatalf("expected flag enabled")
	}
	t.Setenv("FLAG_STRICT_PDF_CHECK", "off")
	if Enabled(StrictPDFCheck) {
		t.Fatalf("expected flag disabled")
	}
}

func TestEnabledOrDefault(t *testing.T) {
	t.Setenv("FLAG_SUPER_ADMIN_BOOTSTRAP", "")
	if !EnabledOr(SuperAdminBootstrap, true) {
		t.Fatalf("expected default to apply for an empty value")
	}
	t.Setenv("FLAG_SUPER_ADMIN_BOOTSTRAP", "0")
	if EnabledOr(SuperAdminBootstrap, true) {
		t.Fatalf("expected explicit value to override default")
	}
}
