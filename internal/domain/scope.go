package domain

// Scope constrains a data access to one institution. The zero value is
// unrestricted and is only ever produced for SUPER_ADMIN callers.
type Scope struct {
	InstitutionID string
}

// Unrestricted reports whether the scope spans every institution.
func (s Scope) Unrestricted() bool {
	return s.InstitutionID == ""
}

// Allows reports whether a row owned by institutionID is visible in s.
func (s Scope) Allows(institutionID string) bool {
	return s.Unrestricted() || s.InstitutionID == institutionID
}
