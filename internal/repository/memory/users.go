package memory

import (
	"context"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// UserRepository implements domain.UserRepository in memory
type UserRepository struct{ s *Store }

// insertUserLocked applies the email and single-super-admin constraints. Caller holds s.mu.
func (s *Store) insertUserLocked(u *domain.User) error {
	for _, existing := range s.users.rows {
		if existing.Email == u.Email {
			return domain.NewError(domain.ErrDuplicate, "User with this email already exists")
		}
		if u.Role == domain.RoleSuperAdmin && existing.Role == domain.RoleSuperAdmin {
			return domain.NewError(domain.ErrForbidden, "Super admin already exists. Cannot create another one.")
		}
	}
	now := s.now()
	u.ID = newID()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users.insert(u.ID, clone(u))
	return nil
}

func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertUserLocked(u)
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users.get(id)
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "User not found")
	}
	return clone(u), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users.rows {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, domain.NewError(domain.ErrNotFound, "User not found")
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users.get(id)
	if !ok {
		return domain.NewError(domain.ErrNotFound, "User not found")
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = r.s.now()
	return nil
}

func (r *UserRepository) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users.get(id)
	if !ok {
		return domain.NewError(domain.ErrNotFound, "User not found")
	}
	u.LastLoginAt = &at
	return nil
}

func (r *UserRepository) ExistsWithRole(_ context.Context, role domain.Role) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users.rows {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) CountByInstitution(_ context.Context, institutionID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users.newestFirst(func(u *domain.User) bool { return u.InstitutionID == institutionID })), nil
}

// InstitutionRepository implements domain.InstitutionRepository in memory
type InstitutionRepository struct{ s *Store }

func (r *InstitutionRepository) emailTakenLocked(email, exceptID string) bool {
	for id, inst := range r.s.institutions.rows {
		if id != exceptID && inst.Email == email {
			return true
		}
	}
	return false
}

// CreateWithAdmin stores both rows or neither.
func (r *InstitutionRepository) CreateWithAdmin(_ context.Context, inst *domain.Institution, admin *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.emailTakenLocked(inst.Email, "") {
		return domain.NewError(domain.ErrDuplicate, "Institution with this email already exists")
	}
	for _, u := range r.s.users.rows {
		if u.Email == admin.Email {
			return domain.NewError(domain.ErrDuplicate, "User with this email already exists")
		}
	}

	now := r.s.now()
	inst.ID = newID()
	inst.CreatedAt, inst.UpdatedAt = now, now
	admin.InstitutionID = inst.ID
	if err := r.s.insertUserLocked(admin); err != nil {
		return err
	}
	r.s.institutions.insert(inst.ID, clone(inst))
	return nil
}

func (r *InstitutionRepository) GetByID(_ context.Context, id string) (*domain.Institution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inst, ok := r.s.institutions.get(id)
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "Institution not found")
	}
	return clone(inst), nil
}

func (r *InstitutionRepository) Update(_ context.Context, inst *domain.Institution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.institutions.get(inst.ID)
	if !ok {
		return domain.NewError(domain.ErrNotFound, "Institution not found")
	}
	if r.emailTakenLocked(inst.Email, inst.ID) {
		return domain.NewError(domain.ErrDuplicate, "Institution with this email already exists")
	}
	existing.Name = inst.Name
	existing.Email = inst.Email
	existing.PhoneNumber = inst.PhoneNumber
	existing.Address = inst.Address
	existing.Website = inst.Website
	existing.UpdatedAt = r.s.now()
	*inst = *existing
	return nil
}

func (r *InstitutionRepository) Deactivate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.institutions.get(id)
	if !ok {
		return domain.NewError(domain.ErrNotFound, "Institution not found")
	}
	inst.IsActive = false
	inst.UpdatedAt = r.s.now()
	return nil
}

func (r *InstitutionRepository) List(_ context.Context, filter domain.InstitutionFilter, page domain.Page) ([]*domain.Institution, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := r.s.institutions.newestFirst(func(inst *domain.Institution) bool {
		return filter.Search == "" || containsFold(inst.Name, filter.Search) || containsFold(inst.Email, filter.Search)
	})
	return paginate(rows, page), len(rows), nil
}
