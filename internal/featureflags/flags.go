package featureflags

import (
	"os"
	"strings"
)

// Known flags.
const (
	// SuperAdminBootstrap exposes POST /api/auth/super-admin. The singleton
	// guard still applies when it is on.
	SuperAdminBootstrap = "super_admin_bootstrap"
	// StrictPDFCheck makes the payslip worker require the %%EOF trailer in
	// addition to the %PDF- header.
	StrictPDFCheck = "strict_pdf_check"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	return EnabledOr(name, false)
}

// EnabledOr is Enabled with a default for an unset variable.
func EnabledOr(name string, def bool) bool {
	v, ok := os.LookupEnv("FLAG_" + strings.ToUpper(name))
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
