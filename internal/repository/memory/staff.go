package memory

import (
	"context"
	"slices"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// StaffRepository implements domain.StaffRepository in memory
type StaffRepository struct{ s *Store }

var (
	errStaffNotFound  = domain.NewError(domain.ErrNotFound, "Staff member not found")
	errStaffDuplicate = domain.NewError(domain.ErrDuplicate, "Staff member with this email already exists")
)

func (r *StaffRepository) emailTakenLocked(institutionID, email, exceptID string) bool {
	for id, st := range r.s.staff.rows {
		if id != exceptID && st.InstitutionID == institutionID && st.Email == email {
			return true
		}
	}
	return false
}

func (r *StaffRepository) Create(_ context.Context, st *domain.Staff) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.emailTakenLocked(st.InstitutionID, st.Email, "") {
		return errStaffDuplicate
	}
	now := r.s.now()
	st.ID = newID()
	st.CreatedAt, st.UpdatedAt = now, now
	r.s.staff.insert(st.ID, clone(st))
	return nil
}

func (r *StaffRepository) getLocked(scope domain.Scope, id string) (*domain.Staff, error) {
	st, ok := r.s.staff.get(id)
	if !ok || !scope.Allows(st.InstitutionID) {
		return nil, errStaffNotFound
	}
	return st, nil
}

func (r *StaffRepository) GetByID(_ context.Context, scope domain.Scope, id string) (*domain.Staff, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	return clone(st), nil
}

func (r *StaffRepository) Update(_ context.Context, st *domain.Staff) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, err := r.getLocked(domain.Scope{InstitutionID: st.InstitutionID}, st.ID)
	if err != nil {
		return err
	}
	if r.emailTakenLocked(st.InstitutionID, st.Email, st.ID) {
		return errStaffDuplicate
	}
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = r.s.now()
	*existing = *st
	return nil
}

func (r *StaffRepository) Deactivate(_ context.Context, scope domain.Scope, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.getLocked(scope, id)
	if err != nil {
		return err
	}
	st.IsActive = false
	st.UpdatedAt = r.s.now()
	return nil
}

func (r *StaffRepository) List(_ context.Context, scope domain.Scope, filter domain.StaffFilter, page domain.Page) ([]*domain.Staff, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := r.s.staff.newestFirst(func(st *domain.Staff) bool {
		if !scope.Allows(st.InstitutionID) {
			return false
		}
		if filter.Search != "" && !containsFold(st.Name, filter.Search) &&
			!containsFold(st.Email, filter.Search) && !containsFold(st.EmployeeID, filter.Search) {
			return false
		}
		if filter.Department != "" && st.Department != filter.Department {
			return false
		}
		return filter.Active == nil || st.IsActive == *filter.Active
	})
	return paginate(rows, page), len(rows), nil
}

func (r *StaffRepository) Departments(_ context.Context, scope domain.Scope) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []string{}
	for _, st := range r.s.staff.rows {
		if scope.Allows(st.InstitutionID) && st.Department != "" && !slices.Contains(out, st.Department) {
			out = append(out, st.Department)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r *StaffRepository) CountByInstitution(_ context.Context, institutionID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.staff.newestFirst(func(st *domain.Staff) bool { return st.InstitutionID == institutionID })), nil
}
